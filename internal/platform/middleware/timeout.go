package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds the request context. Handlers run on the request
// goroutine and must honor ctx; a handler that gives up because of the
// deadline is answered with 504 unless it already wrote a response.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if c.Response().Committed || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return err
			}
			var he *echo.HTTPError
			if errors.As(err, &he) && he.Code == http.StatusGatewayTimeout {
				return err
			}
			return echo.NewHTTPError(http.StatusGatewayTimeout, "request exceeded "+timeout.String())
		}
	}
}
