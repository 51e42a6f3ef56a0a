package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// RequestLogger returns the access-log chain: a request-scoped logger derived
// from base, tagged with chi's request id, and one log line per completed
// request. Mount it after chimw.RequestID.
func RequestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	withLogger := hlog.NewHandler(base)
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("http request")
	})
	remote := hlog.RemoteAddrHandler("remote_addr")

	return func(next http.Handler) http.Handler {
		return withLogger(requestIDField(remote(access(next))))
	}
}

func requestIDField(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}
