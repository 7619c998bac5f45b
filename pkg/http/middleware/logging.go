package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"TradeFuse/pkg/logger"
)

// RequestLogging logs one structured line per request after it completes.
func RequestLogging(lgr *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)

			lgr.Info("http request",
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", req.RemoteAddr),
				logger.Int("status", res.Status),
				logger.Duration("elapsed", time.Since(start)))

			return err
		}
	}
}
