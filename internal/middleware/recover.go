package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/royalbingo/bingo-api/internal/pkg/logger"
	"github.com/royalbingo/bingo-api/internal/pkg/metrics"
	"github.com/royalbingo/bingo-api/internal/pkg/response"
)

// Recover turns a handler panic into a 500 and logs the stack
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				metrics.Panics.Inc()
				logger.FromContext(r.Context()).Error().
					Interface("error", err).
					Str("stack", string(debug.Stack())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				response.InternalError(w)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
