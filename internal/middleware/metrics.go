package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remindly-app/remindly-api/internal/service"
)

// Metrics records duration and status for every request under its route
// template, so /reminders/:id aggregates as one series.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
