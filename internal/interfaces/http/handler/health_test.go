package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/scheduler"
)

type staticStatus scheduler.DispatcherStats

func (s staticStatus) Stats() scheduler.DispatcherStats {
	return scheduler.DispatcherStats(s)
}

func serveHealth(t *testing.T, h *HealthHandler) (int, HealthResponse) {
	t.Helper()
	router := gin.New()
	h.RegisterHealthRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy while dispatcher runs", func(t *testing.T) {
		h := NewHealthHandler("vusion-esl-driver", "1.2.0", 3, staticStatus{Running: true, Workers: 10, QueueSize: 100, Processed: 7})
		start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
		h.startTime = start
		h.now = func() time.Time { return start.Add(90 * time.Second) }

		code, resp := serveHealth(t, h)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "vusion-esl-driver", resp.Name)
		assert.Equal(t, "1.2.0", resp.Version)
		assert.Equal(t, runtime.Version(), resp.GoVersion)
		assert.Equal(t, "2024-03-01T08:01:30Z", resp.Time)
		assert.Equal(t, "1m30s", resp.Uptime)
		assert.Equal(t, 3, resp.Stores)
		require.NotNil(t, resp.Dispatcher)
		assert.Equal(t, int64(7), resp.Dispatcher.Processed)
	})

	t.Run("unavailable once dispatcher stopped", func(t *testing.T) {
		h := NewHealthHandler("vusion-esl-driver", "", 0, staticStatus{Running: false})

		code, resp := serveHealth(t, h)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", resp.Status)
	})

	t.Run("without dispatcher", func(t *testing.T) {
		h := NewHealthHandler("vusion-esl-driver", "", 1, nil)

		code, resp := serveHealth(t, h)

		assert.Equal(t, http.StatusOK, code)
		assert.Nil(t, resp.Dispatcher)
	})
}
