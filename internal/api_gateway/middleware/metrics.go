package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/settlement-closer/internal/platform/metrics"
)

const unmatchedRoute = "unmatched"

// Metrics records request counts and latency labelled by route template, so
// settlement ids never become label values.
func Metrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.ObserveRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
