package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/infrastructure/scheduler"
)

// DispatcherStatus reports the sync worker pool state. scheduler.SyncDispatcher implements it
type DispatcherStatus interface {
	Stats() scheduler.DispatcherStats
}

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	BaseHandler
	name       string
	version    string
	stores     int
	dispatcher DispatcherStatus
	startTime  time.Time
	now        func() time.Time
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string                     `json:"status"`
	Name       string                     `json:"name"`
	Version    string                     `json:"version,omitempty"`
	GoVersion  string                     `json:"go_version"`
	Time       string                     `json:"time"`
	Uptime     string                     `json:"uptime"`
	Stores     int                        `json:"stores"`
	Dispatcher *scheduler.DispatcherStats `json:"dispatcher,omitempty"`
}

// NewHealthHandler creates a HealthHandler. dispatcher may be nil.
func NewHealthHandler(name, version string, stores int, dispatcher DispatcherStatus) *HealthHandler {
	return &HealthHandler{
		name:       name,
		version:    version,
		stores:     stores,
		dispatcher: dispatcher,
		startTime:  time.Now(),
		now:        time.Now,
	}
}

// RegisterHealthRoutes registers GET /health
func (h *HealthHandler) RegisterHealthRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
}

// Health reports healthy while the dispatcher accepts work, 503 once it stopped
func (h *HealthHandler) Health(c *gin.Context) {
	now := h.now()
	resp := HealthResponse{
		Status:    "healthy",
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Time:      now.UTC().Format(time.RFC3339),
		Uptime:    now.Sub(h.startTime).Round(time.Second).String(),
		Stores:    h.stores,
	}

	status := http.StatusOK
	if h.dispatcher != nil {
		stats := h.dispatcher.Stats()
		resp.Dispatcher = &stats
		if !stats.Running {
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, resp)
}
