package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/interfaces/http/dto"
	"github.com/rosshiga/Catapult-VUSION-Driver/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouteRegistrarFunc adapts a function to RouteRegistrar
type RouteRegistrarFunc func(rg *gin.RouterGroup)

// RegisterRoutes implements RouteRegistrar
func (f RouteRegistrarFunc) RegisterRoutes(rg *gin.RouterGroup) {
	f(rg)
}

// Router manages HTTP route registration
type Router struct {
	engine         *gin.Engine
	apiVersion     string
	root           []RouteRegistrar
	registrars     []RouteRegistrar
	metricsPath    string
	metricsHandler http.Handler
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithMetrics serves handler at path. A nil handler disables the route.
func WithMetrics(path string, handler http.Handler) RouterOption {
	return func(r *Router) {
		r.metricsPath = path
		r.metricsHandler = handler
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		root:       make([]RouteRegistrar, 0),
		registrars: make([]RouteRegistrar, 0),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar for the versioned API group
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// RegisterRoot adds a RouteRegistrar for paths outside the versioned API, such as /catapult and /health
func (r *Router) RegisterRoot(registrar RouteRegistrar) *Router {
	r.root = append(r.root, registrar)
	return r
}

// Setup registers all routes with the engine.
// Unknown paths and methods get the JSON error envelope.
func (r *Router) Setup() {
	rootGroup := &r.engine.RouterGroup
	for _, registrar := range r.root {
		registrar.RegisterRoutes(rootGroup)
	}

	// Create versioned API group
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}

	if r.metricsHandler != nil && r.metricsPath != "" {
		r.engine.GET(r.metricsPath, gin.WrapH(r.metricsHandler))
	}

	r.engine.HandleMethodNotAllowed = true
	r.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeMethodNotAllowed, "Method Not Allowed", middleware.GetRequestID(c)))
	})
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeNotFound, "Not Found", middleware.GetRequestID(c)))
	})
}

// APIPrefix returns the versioned API path prefix
func (r *Router) APIPrefix() string {
	return "/api/" + r.apiVersion
}
