package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/metrics"
)

// Recovery turns a handler panic into a 500 and counts it per route. If the
// handler had already started the response, nothing more is written.
func Recovery(logger zerolog.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)
				rid, _ := c.Get("request_id").(string)
				route := c.Path()
				if route == "" {
					route = "unmatched"
				}
				m.HTTPPanics.WithLabelValues(c.Request().Method, route).Inc()

				committed := c.Response().Committed
				logger.Error().
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("route", route).
					Bool("committed", committed).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack[:n]).
					Msg("panic recovered")

				if committed {
					err = nil
					return
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
