package esl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/integration"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/logger"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/retry"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/telemetry"
)

const (
	headerSubscriptionKey = "Ocp-Apim-Subscription-Key"
	headerCacheControl    = "Cache-Control"
	headerContentType     = "Content-Type"
	contentTypeJSON       = "application/json"

	// maxLoggedBodyChars keeps error messages readable; the full bounded body is logged
	maxLoggedBodyChars = 512
)

// StatusError is returned for a response outside the 2xx range
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	msg := "unexpected HTTP status " + strconv.Itoa(e.StatusCode)
	if e.Body == "" {
		return msg
	}
	body := e.Body
	if len(body) > maxLoggedBodyChars {
		body = body[:maxLoggedBodyChars] + "..."
	}
	return msg + ": " + body
}

// DeliveryMetrics receives delivery measurements. telemetry.SyncMetrics implements it
type DeliveryMetrics interface {
	ObserveSinkRequest(op string, statusClass string, elapsed time.Duration)
	ObserveBatch(op string, items int, failed bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSinkRequest(string, string, time.Duration) {}
func (noopMetrics) ObserveBatch(string, int, bool)                   {}

// VusionClient implements integration.LabelSink for the VUSION label cloud.
// It is safe for concurrent use; the HTTP client and rate limiter are shared.
type VusionClient struct {
	config     *VusionConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    DeliveryMetrics
	logger     *zap.Logger
	newTimer   func() backoff.Timer
}

// ClientOption configures a VusionClient
type ClientOption func(*VusionClient)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *VusionClient) {
		c.httpClient = client
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *VusionClient) {
		c.logger = l
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m DeliveryMetrics) ClientOption {
	return func(c *VusionClient) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithRetryTimer replaces the timer used between retries, one per batch
func WithRetryTimer(newTimer func() backoff.Timer) ClientOption {
	return func(c *VusionClient) {
		c.newTimer = newTimer
	}
}

// NewVusionClient creates a new client with the given configuration
func NewVusionClient(config *VusionConfig, opts ...ClientOption) (*VusionClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &VusionClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		metrics: noopMetrics{},
		logger:  zap.NewNop(),
	}
	if config.RateLimitQPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimitQPS), config.RateLimitBurst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UpsertItems posts items to a store in size and count bounded batches
func (c *VusionClient) UpsertItems(ctx context.Context, storeID string, items []integration.LabelItem) error {
	if len(items) == 0 {
		return nil
	}

	batches, err := PlanBatches(items, c.config.MaxItemsPerBatch, c.config.MaxBytesPerBatch, integration.LabelItem.EncodedSize)
	if err != nil {
		return &integration.DeliveryError{
			Op:      integration.SyncOperationUpsert,
			StoreID: storeID,
			Cause:   fmt.Errorf("encode items: %w", err),
		}
	}
	return deliver(ctx, c, integration.SyncOperationUpsert, storeID, batches)
}

// DeleteItems removes items from a store by item id
func (c *VusionClient) DeleteItems(ctx context.Context, storeID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return deliver(ctx, c, integration.SyncOperationDelete, storeID, ChunkKeys(itemIDs, c.config.MaxItemsPerBatch))
}

// deliver sends batches in order and stops at the first batch that exhausts its retries
func deliver[T any](ctx context.Context, c *VusionClient, op integration.SyncOperation, storeID string, batches [][]T) error {
	ctx, span := telemetry.StartSpan(ctx, "vusion."+spanSuffix(op),
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrStoreID, storeID),
		telemetry.WithAttribute(telemetry.SpanAttrBatchCount, len(batches)),
	)
	defer span.End()

	log := logger.WithLogger(ctx, c.logger).With(
		zap.String("operation", op.String()),
		zap.String("store_id", storeID),
	)
	url := c.config.ItemsURL(storeID)

	for i, batch := range batches {
		log.Info("Sending batch",
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("items", len(batch)))

		body, err := json.Marshal(batch)
		if err != nil {
			derr := &integration.DeliveryError{Op: op, StoreID: storeID, Batch: i, Batches: len(batches), Cause: fmt.Errorf("encode batch: %w", err)}
			telemetry.RecordError(span, derr)
			return derr
		}

		lastStatus := 0
		attempts, err := retry.Do(ctx, c.config.Retry, func(ctx context.Context, attempt int) error {
			status, err := c.send(ctx, op, url, body)
			lastStatus = status
			return err
		}, c.retryOptions(log, span, i)...)

		c.metrics.ObserveBatch(op.String(), len(batch), err != nil)
		if err != nil {
			derr := &integration.DeliveryError{
				Op:         op,
				StoreID:    storeID,
				Batch:      i,
				Batches:    len(batches),
				Attempts:   attempts,
				StatusCode: lastStatus,
				Cause:      err,
			}
			log.Error("Batch failed after retries", zap.Int("batch", i+1), zap.Int("attempts", attempts), zap.Error(err))
			telemetry.RecordError(span, derr)
			return derr
		}
		telemetry.AddEvent(span, telemetry.EventBatchDelivered,
			telemetry.SpanAttrBatchIndex, i,
			telemetry.SpanAttrItemCount, len(batch),
			telemetry.SpanAttrAttempt, attempts,
		)
	}

	telemetry.SetOK(span)
	return nil
}

func (c *VusionClient) retryOptions(log *logger.ContextLogger, span trace.Span, batch int) []retry.Option {
	opts := []retry.Option{
		retry.WithNotify(func(attempt int, err error, delay time.Duration) {
			log.Warn("Batch attempt failed, retrying",
				zap.Int("batch", batch+1),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err))
			telemetry.AddEvent(span, telemetry.EventBatchRetry,
				telemetry.SpanAttrBatchIndex, batch,
				telemetry.SpanAttrAttempt, attempt,
				telemetry.SpanAttrBackoff, delay.Milliseconds(),
			)
		}),
	}
	if c.newTimer != nil {
		opts = append(opts, retry.WithTimer(c.newTimer()))
	}
	return opts
}

// send performs one attempt and returns the response status, or 0 if none was received.
// Once the rate limiter admits the request it is detached from ctx cancellation, so a
// request already on the wire completes or times out on its own.
func (c *VusionClient) send(ctx context.Context, op integration.SyncOperation, url string, body []byte) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), op.String(), url, bytes.NewReader(body))
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set(headerSubscriptionKey, c.config.SubscriptionKey)
	req.Header.Set(headerCacheControl, "no-cache")
	req.Header.Set(headerContentType, contentTypeJSON)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveSinkRequest(op.String(), "error", time.Since(start))
		return 0, err
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxErrorBodyBytes))
	// drain the remainder so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	c.metrics.ObserveSinkRequest(op.String(), statusClass(resp.StatusCode), time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}

	logger.WithLogger(ctx, c.logger).Warn("VUSION error response",
		zap.String("operation", op.String()),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", respBody),
		zap.NamedError("read_error", readErr))

	return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func spanSuffix(op integration.SyncOperation) string {
	if op == integration.SyncOperationDelete {
		return "delete_items"
	}
	return "upsert_items"
}

// IsStatus reports whether err carries an HTTP response with the given status
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

var _ integration.LabelSink = (*VusionClient)(nil)
