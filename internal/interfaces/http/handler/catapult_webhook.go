package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/rosshiga/Catapult-VUSION-Driver/internal/application/integration"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/integration"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/shared"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/logger"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/scheduler"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/interfaces/http/dto"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/interfaces/http/middleware"
)

const (
	emptyBodyMessage    = "Empty request body"
	invalidJSONPrefix   = "Invalid JSON: "
	bodyTooLargeMessage = "Request body exceeds maximum allowed size"
	readFailedMessage   = "Failed to read request body"
)

// LabelSyncer applies one decoded webhook request
type LabelSyncer interface {
	Handle(ctx context.Context, cmd appintegration.SyncCommand) *appintegration.SyncResult
}

// SyncRunner runs a sync on a worker and waits for it. scheduler.SyncDispatcher implements it
type SyncRunner interface {
	Do(ctx context.Context, id string, run func(ctx context.Context)) error
}

// WebhookMetrics records inbound webhook requests
type WebhookMetrics interface {
	ObserveWebhook(statusCode int, elapsed time.Duration)
}

type noopWebhookMetrics struct{}

func (noopWebhookMetrics) ObserveWebhook(int, time.Duration) {}

// webhookFailure is a request rejected before or instead of a sync result
type webhookFailure struct {
	status  int
	code    string
	message string
}

// CatapultWebhookHandler receives item change batches pushed by the Catapult POS
type CatapultWebhookHandler struct {
	BaseHandler
	syncer  LabelSyncer
	runner  SyncRunner
	metrics WebhookMetrics
}

// WebhookOption configures a CatapultWebhookHandler
type WebhookOption func(*CatapultWebhookHandler)

// WithWebhookMetrics sets the request metrics sink
func WithWebhookMetrics(m WebhookMetrics) WebhookOption {
	return func(h *CatapultWebhookHandler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// NewCatapultWebhookHandler creates the webhook handler.
// A nil runner applies requests on the calling goroutine.
func NewCatapultWebhookHandler(syncer LabelSyncer, runner SyncRunner, opts ...WebhookOption) *CatapultWebhookHandler {
	h := &CatapultWebhookHandler{
		syncer:  syncer,
		runner:  runner,
		metrics: noopWebhookMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterWebhookRoutes registers POST /catapult. Every other method gets a plain text 405.
func (h *CatapultWebhookHandler) RegisterWebhookRoutes(r gin.IRoutes) {
	r.POST("/catapult", h.Receive)
	for _, method := range []string{
		http.MethodGet,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodHead,
		http.MethodOptions,
	} {
		r.Handle(method, "/catapult", h.rejectMethod)
	}
}

// RegisterRoutes registers the JSON variant under the versioned API group
func (h *CatapultWebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/catapult/items", h.ReceiveItems)
}

// Receive handles POST /catapult and answers with the plain summary line
func (h *CatapultWebhookHandler) Receive(c *gin.Context) {
	defer h.observe(c, time.Now())

	result, failure := h.process(c)
	if failure != nil {
		c.String(failure.status, failure.message)
		return
	}
	c.String(result.StatusCode, result.Message)
}

// ReceiveItems handles POST /api/v1/catapult/items and answers with the JSON envelope
func (h *CatapultWebhookHandler) ReceiveItems(c *gin.Context) {
	defer h.observe(c, time.Now())

	result, failure := h.process(c)
	if failure != nil {
		h.Error(c, failure.status, failure.code, failure.message)
		return
	}

	resp := result.ToResponse()
	if result.StatusCode != http.StatusOK {
		c.JSON(result.StatusCode, dto.NewSyncFailedResponse(
			dto.ErrCodeSyncFailed, result.Message, middleware.GetRequestID(c), resp))
		return
	}
	h.Success(c, resp)
}

func (h *CatapultWebhookHandler) rejectMethod(c *gin.Context) {
	defer h.observe(c, time.Now())
	c.String(http.StatusMethodNotAllowed, shared.ErrMethodNotAllowed.Message)
}

func (h *CatapultWebhookHandler) observe(c *gin.Context, start time.Time) {
	h.metrics.ObserveWebhook(c.Writer.Status(), time.Since(start))
}

// process decodes the body and runs the sync on a dispatcher worker
func (h *CatapultWebhookHandler) process(c *gin.Context) (*appintegration.SyncResult, *webhookFailure) {
	ctx := c.Request.Context()
	log := logger.L(ctx)

	body, failure := readBody(c)
	if failure != nil {
		log.Warn("Rejected webhook body", zap.Int("status", failure.status), zap.String("reason", failure.message))
		return nil, failure
	}
	log.Debug("Webhook body received", zap.Int("bytes", len(body)))

	var items []integration.PosItem
	if err := json.Unmarshal(body, &items); err != nil {
		log.Error("Failed to parse request JSON", zap.Error(err))
		return nil, &webhookFailure{
			status:  http.StatusBadRequest,
			code:    dto.ErrCodeInvalidJSON,
			message: invalidJSONPrefix + err.Error(),
		}
	}

	cmd := appintegration.NewSyncCommand(middleware.GetRequestID(c), items, body)
	if len(items) == 0 {
		return h.syncer.Handle(ctx, cmd), nil
	}
	log.Info("Received items from Catapult", zap.Int("items", len(items)))

	if h.runner == nil {
		return h.syncer.Handle(ctx, cmd), nil
	}

	var result *appintegration.SyncResult
	err := h.runner.Do(ctx, cmd.RequestID, func(jobCtx context.Context) {
		result = h.syncer.Handle(jobCtx, cmd)
	})
	if err != nil {
		return nil, dispatchFailure(ctx, err)
	}
	return result, nil
}

func readBody(c *gin.Context) ([]byte, *webhookFailure) {
	if c.Request.Body == nil {
		return nil, &webhookFailure{http.StatusBadRequest, dto.ErrCodeBadRequest, emptyBodyMessage}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &webhookFailure{http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, bodyTooLargeMessage}
		}
		return nil, &webhookFailure{http.StatusBadRequest, dto.ErrCodeBadRequest, readFailedMessage}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &webhookFailure{http.StatusBadRequest, dto.ErrCodeBadRequest, emptyBodyMessage}
	}
	return body, nil
}

// dispatchFailure maps a dispatcher error to the reply sent to the POS
func dispatchFailure(ctx context.Context, err error) *webhookFailure {
	log := logger.L(ctx)

	switch {
	case errors.Is(err, scheduler.ErrJobQueueFull),
		errors.Is(err, scheduler.ErrSchedulerNotRunning),
		errors.Is(err, scheduler.ErrJobDropped):
		log.Warn("Webhook not processed", zap.Error(err))
		return &webhookFailure{http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, shared.ErrServiceUnavailable.Message}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// the job keeps running on its worker
		log.Warn("Caller gave up before the sync finished", zap.Error(err))
		return &webhookFailure{http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, shared.ErrServiceUnavailable.Message}
	default:
		log.Error("Webhook sync failed", zap.Error(err))
		return &webhookFailure{http.StatusInternalServerError, dto.ErrCodeInternal, shared.ErrInternal.Message}
	}
}
