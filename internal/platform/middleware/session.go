package middleware

import (
	"log/slog"
	"net/http"
	"time"

	dErrors "cloudgate/pkg/domain-errors"
	"cloudgate/pkg/platform/httputil"
	"cloudgate/pkg/platform/secrets"
	"cloudgate/pkg/requestcontext"
)

// DefaultSessionCookie is the cookie carrying the opaque session id.
const DefaultSessionCookie = "cloudgate_sid"

// SessionCookieConfig controls the session cookie attributes.
type SessionCookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// SessionCookie makes sure every request carries a session id. Missing or
// malformed cookies are replaced with a freshly generated id.
func SessionCookie(cfg SessionCookieConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.Name == "" {
		cfg.Name = DefaultSessionCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if c, err := r.Cookie(cfg.Name); err == nil && secrets.Valid(c.Value) {
				sid = c.Value
			}
			if sid == "" {
				var err error
				sid, err = secrets.Generate()
				if err != nil {
					logger.ErrorContext(r.Context(), "failed to generate session id",
						"error", err,
						"request_id", GetRequestID(r.Context()),
					)
					httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "session unavailable"))
					return
				}
			}

			// refresh on every response so the cookie tracks the store TTL
			http.SetCookie(w, &http.Cookie{
				Name:     cfg.Name,
				Value:    sid,
				Path:     "/",
				MaxAge:   int(cfg.MaxAge.Seconds()),
				HttpOnly: true,
				Secure:   cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(r.Context(), sid)))
		})
	}
}
