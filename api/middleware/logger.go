// Package middleware holds the chi middleware of the qkanhe server.
package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Logger logs every request on logger at level, tagged with component.
func Logger(component string, logger *logrus.Logger, level logrus.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.WithFields(logrus.Fields{
					"component": component,
					"method":    r.Method,
					"path":      r.URL.Path,
					"status":    ww.Status(),
					"bytes":     ww.BytesWritten(),
					"duration":  time.Since(start).String(),
					"remote":    r.RemoteAddr,
				}).Log(level, "request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
