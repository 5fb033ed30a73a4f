package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/session-scheduler-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route so scanners cannot inflate label cardinality.
const unmatchedRoute = "unmatched"

// Metrics records request duration and count per route template. Requests to skipPaths, such as
// probes and the scrape endpoint, are not recorded.
func Metrics(metricsSvc *service.MetricsService, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skip[route]; ok {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
