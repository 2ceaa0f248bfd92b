package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger writes one line per request. Errors are rendered here so the logged
// status matches what the client received.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			res := c.Response()
			level := zerolog.InfoLevel
			if res.Status >= 500 {
				level = zerolog.ErrorLevel
			} else if res.Status >= 400 {
				level = zerolog.WarnLevel
			}

			rid, _ := c.Get(requestIDKey).(string)
			evt := logger.WithLevel(level).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("route", c.Path()).
				Str("uri", c.Request().RequestURI).
				Int("status", res.Status).
				Int64("bytes_in", c.Request().ContentLength).
				Int64("bytes_out", res.Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if pid := c.Param("id"); pid != "" {
				evt = evt.Str("patient_id", pid)
			}
			if err != nil {
				evt = evt.Err(err)
			}
			evt.Msg("request")
			return nil
		}
	}
}
