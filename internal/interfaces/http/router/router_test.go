package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosshiga/Catapult-VUSION-Driver/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Equal(t, "/api/v1", r.APIPrefix())
	assert.Empty(t, r.registrars)
	assert.Empty(t, r.root)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
	assert.Equal(t, "/api/v2", r.APIPrefix())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	r.RegisterRoot(RouteRegistrarFunc(func(rg *gin.RouterGroup) {
		rg.POST("/catapult", func(c *gin.Context) { c.String(http.StatusOK, "root") })
	}))
	r.Register(RouteRegistrarFunc(func(rg *gin.RouterGroup) {
		rg.POST("/catapult/items", func(c *gin.Context) { c.String(http.StatusOK, "versioned") })
	}))
	r.Setup()

	w := serve(engine, http.MethodPost, "/catapult")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "root", w.Body.String())

	w = serve(engine, http.MethodPost, "/api/v1/catapult/items")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "versioned", w.Body.String())
}

func TestRouterSetup_Metrics(t *testing.T) {
	engine := gin.New()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("esl_webhook_requests_total 1\n"))
	})
	NewRouter(engine, WithMetrics("/metrics", metrics)).Setup()

	w := serve(engine, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "esl_webhook_requests_total")
}

func TestRouterSetup_MetricsDisabled(t *testing.T) {
	engine := gin.New()
	NewRouter(engine, WithMetrics("/metrics", nil)).Setup()

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/metrics").Code)
}

func TestRouterSetup_UnknownRoutes(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)
	r.Register(RouteRegistrarFunc(func(rg *gin.RouterGroup) {
		rg.POST("/catapult/items", func(c *gin.Context) { c.Status(http.StatusOK) })
	}))
	r.Setup()

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{http.MethodGet, "/api/v1/catapult/items", http.StatusMethodNotAllowed, dto.ErrCodeMethodNotAllowed},
		{http.MethodGet, "/nowhere", http.StatusNotFound, dto.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(engine, tt.method, tt.path)
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}
