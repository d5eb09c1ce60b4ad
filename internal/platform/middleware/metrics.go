package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/dashboard/internal/platform/telemetry"
)

// Metrics records request counts and latency per matched route. Register it
// outside Logger so the status reflects the written error response.
func Metrics(m *telemetry.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(c.Request().Method, route, c.Response().Status, time.Since(start))
			return nil
		}
	}
}
