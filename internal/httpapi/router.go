package httpapi

import (
	"github.com/gin-gonic/gin"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/devenwen/callme-gate/internal/httpapi/middleware"
	"github.com/devenwen/callme-gate/internal/metrics"
)

// NewRouter wires the Gate's HTTP surface: admin/introspection endpoints
// under fixed paths, everything else falling through to the catch-all
// Dispatch handler (spec.md §6), the way the teacher's NewRouter wires a
// fixed API surface plus a protected group.
func NewRouter(h *Handlers, mc *metrics.Collector) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("callme-gate"))
	r.Use(middleware.RequestContext())
	r.Use(middleware.CORS())

	admin := r.Group("/")
	admin.Use(middleware.Metrics(mc))
	{
		admin.GET("/health", h.HealthCheck)
		admin.GET("/routes", h.ListRoutes)
		admin.GET("/api/jobs/:request_id", h.GetJob)
		admin.DELETE("/api/jobs/:request_id", h.DeleteJob)
		admin.GET("/api/queue/size", h.QueueSize)
	}
	r.GET("/metrics", gin.WrapH(mc.Handler()))

	r.NoRoute(h.Dispatch)
	return r
}
