package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/devenwen/callme-gate/internal/metrics"
)

// Metrics instruments request counts, adapted from the teacher's
// middleware.Metrics; dispatch outcomes/latency are recorded by the
// dispatcher itself, so this only covers the admin/introspection surface
// (/health, /routes, /api/jobs, /api/queue/size).
func Metrics(m *metrics.Collector) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.APIRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
