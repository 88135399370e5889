package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/api/models"
)

// Recovery turns a handler panic into a 500 problem. The panic is logged on
// the request logger when Logger ran first, otherwise on log.
// http.ErrAbortHandler is re-raised so net/http can abort the response.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				l := zerolog.Ctx(r.Context())
				if l.GetLevel() == zerolog.Disabled {
					l = &log
				}
				requestID := GetRequestID(r.Context())
				l.Error().
					Str("request_id", requestID).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				problem := models.NewInternalError(requestID, "an unexpected error occurred")
				problem.Instance = r.URL.Path
				problem.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
