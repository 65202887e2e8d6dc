package middleware

import (
	"net/http"
	"runtime/debug"

	"mercator-hq/quotagate/pkg/telemetry/logging"
)

// Recovery recovers from panics in HTTP handlers and returns a 500 Internal
// Server Error. The panic and stack trace are logged; the client only sees a
// generic message.
//
// Example usage:
//
//	handler = Recovery(logger)(handler)
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					logger.ErrorContext(r.Context(), "panic in handler",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)

					WriteError(w, r, http.StatusInternalServerError, "server_error",
						"An internal error occurred. Please try again later.")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
