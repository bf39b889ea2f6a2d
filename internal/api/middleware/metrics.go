package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
)

// HTTPRecorder receives request start and completion
type HTTPRecorder interface {
	RequestStarted()
	RequestFinished(method, route string, status int, duration time.Duration, size int64)
}

// unmatchedRoute labels requests no route matched, keeping label cardinality bounded
const unmatchedRoute = "unmatched"

// NewMetrics records traffic labelled by the matched route pattern rather
// than the raw path.
func NewMetrics(recorder HTTPRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			recorder.RequestStarted()

			err := next(c)
			if err != nil {
				// resolve the final status before recording
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = unmatchedRoute
			}
			res := c.Response()
			recorder.RequestFinished(c.Request().Method, route, res.Status, time.Since(start), res.Size)

			return err
		}
	}
}
