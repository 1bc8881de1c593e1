package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appintegration "github.com/rosshiga/Catapult-VUSION-Driver/internal/application/integration"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/domain/integration"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/scheduler"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/interfaces/http/dto"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/interfaces/http/middleware"
)

const (
	waianae = "okimoto_corp_us.waianae_store"
	kailua  = "okimoto_corp_us.kailua_store"

	mixedBatch = `[
		{"itemId": "100", "itemName": "Poke Bowl", "stores": [
			{"storeNumber": "RS1", "price1": 12.99},
			{"storeNumber": "HQ", "price1": 12.99}
		]},
		{"itemId": "200", "stores": [{"storeNumber": "RS2", "deleted": true}]}
	]`
)

// fakeSink records deliveries and fails the stores listed in fail
type fakeSink struct {
	mu      sync.Mutex
	upserts map[string][]string
	deletes map[string][]string
	fail    map[string]error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		upserts: map[string][]string{},
		deletes: map[string][]string{},
		fail:    map[string]error{},
	}
}

func (s *fakeSink) UpsertItems(_ context.Context, storeID string, items []integration.LabelItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[storeID]; err != nil {
		return err
	}
	for _, item := range items {
		s.upserts[storeID] = append(s.upserts[storeID], item.ID)
	}
	return nil
}

func (s *fakeSink) DeleteItems(_ context.Context, storeID string, itemIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[storeID]; err != nil {
		return err
	}
	s.deletes[storeID] = append(s.deletes[storeID], itemIDs...)
	return nil
}

type recordedWebhook struct {
	status int
}

type fakeWebhookMetrics struct {
	mu    sync.Mutex
	calls []recordedWebhook
}

func (f *fakeWebhookMetrics) ObserveWebhook(status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedWebhook{status})
}

// stubRunner fails every submission with err
type stubRunner struct {
	err error
}

func (r stubRunner) Do(context.Context, string, func(context.Context)) error {
	return r.err
}

func newSyncService(sink integration.LabelSink) *appintegration.LabelSyncService {
	stores := integration.NewStoreMap(map[string]string{"RS1": waianae, "RS2": kailua})
	return appintegration.NewLabelSyncService(sink, stores)
}

func newStartedDispatcher(t *testing.T) *scheduler.SyncDispatcher {
	t.Helper()
	d, err := scheduler.NewSyncDispatcher(scheduler.DispatcherConfig{Workers: 2, QueueSize: 4}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d
}

func newWebhookRouter(h *CatapultWebhookHandler) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	h.RegisterWebhookRoutes(router)
	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.RequestIDHeader, "pos-req-1")
	router.ServeHTTP(w, req)
	return w
}

func TestCatapultWebhook_Receive(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"empty body", "", http.StatusBadRequest, "Empty request body"},
		{"whitespace body", " \n\t", http.StatusBadRequest, "Empty request body"},
		{"empty array", "[]", http.StatusOK, "No items to process"},
		{"null", "null", http.StatusOK, "No items to process"},
		{
			"mixed batch",
			mixedBatch,
			http.StatusOK,
			"Success: 1 items updated, 1 items deleted, 1 items skipped (unmapped stores)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCatapultWebhookHandler(newSyncService(newFakeSink()), newStartedDispatcher(t))
			w := post(newWebhookRouter(h), "/catapult", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
			assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
		})
	}
}

func TestCatapultWebhook_Receive_InvalidJSON(t *testing.T) {
	sink := newFakeSink()
	h := NewCatapultWebhookHandler(newSyncService(sink), newStartedDispatcher(t))

	for _, body := range []string{`{"itemId": "1"}`, `[{"itemId": }]`, `not json`} {
		w := post(newWebhookRouter(h), "/catapult", body)

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.True(t, strings.HasPrefix(w.Body.String(), "Invalid JSON: "), w.Body.String())
	}
	assert.Empty(t, sink.upserts)
}

func TestCatapultWebhook_Receive_DeliversToMappedStores(t *testing.T) {
	sink := newFakeSink()
	h := NewCatapultWebhookHandler(newSyncService(sink), newStartedDispatcher(t))

	w := post(newWebhookRouter(h), "/catapult", mixedBatch)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string][]string{waianae: {"100"}}, sink.upserts)
	assert.Equal(t, map[string][]string{kailua: {"200"}}, sink.deletes)
}

func TestCatapultWebhook_Receive_SinkFailure(t *testing.T) {
	sink := newFakeSink()
	sink.fail[waianae] = errors.New("label cloud unavailable")
	h := NewCatapultWebhookHandler(newSyncService(sink), newStartedDispatcher(t))

	w := post(newWebhookRouter(h), "/catapult", mixedBatch)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t,
		"Processed with errors: 0 items updated, 1 items deleted, 1 errors. First error: POST failed for store "+
			waianae+": label cloud unavailable",
		w.Body.String())
	assert.Equal(t, map[string][]string{kailua: {"200"}}, sink.deletes)
}

func TestCatapultWebhook_MethodNotAllowed(t *testing.T) {
	h := NewCatapultWebhookHandler(newSyncService(newFakeSink()), nil)
	router := newWebhookRouter(h)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, "/catapult", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
		assert.Equal(t, "Method Not Allowed. Use POST.", w.Body.String(), method)
	}
}

func TestCatapultWebhook_DispatchFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"queue full", scheduler.ErrJobQueueFull, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable},
		{"stopped", scheduler.ErrSchedulerNotRunning, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable},
		{"dropped at shutdown", scheduler.ErrJobDropped, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable},
		{"caller gave up", context.Canceled, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable},
		{"panicked", scheduler.ErrJobPanicked, http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCatapultWebhookHandler(newSyncService(newFakeSink()), stubRunner{err: tt.err})
			router := newWebhookRouter(h)

			plain := post(router, "/catapult", mixedBatch)
			assert.Equal(t, tt.wantStatus, plain.Code)

			w := post(router, "/api/v1/catapult/items", mixedBatch)
			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "pos-req-1", resp.Error.RequestID)
		})
	}
}

func TestCatapultWebhook_ReceiveItems(t *testing.T) {
	t.Run("success envelope", func(t *testing.T) {
		h := NewCatapultWebhookHandler(newSyncService(newFakeSink()), newStartedDispatcher(t))
		w := post(newWebhookRouter(h), "/api/v1/catapult/items", mixedBatch)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Success bool                              `json:"success"`
			Data    appintegration.SyncResultResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 1, resp.Data.Updated)
		assert.Equal(t, 1, resp.Data.Deleted)
		assert.Equal(t, 1, resp.Data.Skipped)
		assert.Empty(t, resp.Data.Errors)
		assert.NotNil(t, resp.Data.Errors)
	})

	t.Run("sync failure keeps counts", func(t *testing.T) {
		sink := newFakeSink()
		sink.fail[kailua] = errors.New("timeout")
		h := NewCatapultWebhookHandler(newSyncService(sink), newStartedDispatcher(t))
		w := post(newWebhookRouter(h), "/api/v1/catapult/items", mixedBatch)

		require.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeResponse(t, w)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeSyncFailed, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "DELETE failed for store "+kailua)
		data, ok := resp.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(1), data["updated"])
	})

	t.Run("invalid json", func(t *testing.T) {
		h := NewCatapultWebhookHandler(newSyncService(newFakeSink()), nil)
		w := post(newWebhookRouter(h), "/api/v1/catapult/items", "{")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
		assert.True(t, strings.HasPrefix(resp.Error.Message, "Invalid JSON: "))
	})
}

func TestCatapultWebhook_BodyTooLarge(t *testing.T) {
	h := NewCatapultWebhookHandler(newSyncService(newFakeSink()), nil)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.BodyLimit(16))
	h.RegisterWebhookRoutes(router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/catapult", strings.NewReader(mixedBatch))
	// unknown length so the limit is enforced while reading
	req.ContentLength = -1
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Request body exceeds maximum allowed size", w.Body.String())
}

func TestReadBody(t *testing.T) {
	tests := []struct {
		name       string
		body       func(w http.ResponseWriter) io.ReadCloser
		wantBody   string
		wantStatus int
		wantCode   string
	}{
		{
			name:     "batch",
			body:     func(http.ResponseWriter) io.ReadCloser { return io.NopCloser(strings.NewReader(`[{"itemId":"1"}]`)) },
			wantBody: `[{"itemId":"1"}]`,
		},
		{
			name:       "missing body",
			body:       func(http.ResponseWriter) io.ReadCloser { return nil },
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeBadRequest,
		},
		{
			name:       "whitespace only",
			body:       func(http.ResponseWriter) io.ReadCloser { return io.NopCloser(strings.NewReader(" \r\n\t")) },
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeBadRequest,
		},
		{
			name: "over size limit",
			body: func(w http.ResponseWriter) io.ReadCloser {
				return http.MaxBytesReader(w, io.NopCloser(strings.NewReader(mixedBatch)), 8)
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   dto.ErrCodeRequestTooLarge,
		},
		{
			name:       "connection reset",
			body:       func(http.ResponseWriter) io.ReadCloser { return io.NopCloser(iotest.ErrReader(errors.New("reset"))) },
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/catapult", nil)
			c.Request.Body = tt.body(w)

			body, failure := readBody(c)
			if tt.wantStatus == 0 {
				require.Nil(t, failure)
				assert.Equal(t, tt.wantBody, string(body))
				return
			}
			require.NotNil(t, failure)
			assert.Nil(t, body)
			assert.Equal(t, tt.wantStatus, failure.status)
			assert.Equal(t, tt.wantCode, failure.code)
		})
	}
}

func TestCatapultWebhook_ObservesEveryRequest(t *testing.T) {
	metrics := &fakeWebhookMetrics{}
	h := NewCatapultWebhookHandler(newSyncService(newFakeSink()), nil, WithWebhookMetrics(metrics))
	router := newWebhookRouter(h)

	post(router, "/catapult", "")
	post(router, "/catapult", mixedBatch)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/catapult", nil))

	assert.Equal(t, []recordedWebhook{
		{http.StatusBadRequest},
		{http.StatusOK},
		{http.StatusMethodNotAllowed},
	}, metrics.calls)
}
