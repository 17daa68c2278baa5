package testutil

import (
	"net/http"

	"cloudgate/pkg/requestcontext"
)

// WithSessionID adds a session ID to the request context, as the session
// cookie middleware would.
func WithSessionID(req *http.Request, sessionID string) *http.Request {
	return req.WithContext(requestcontext.WithSessionID(req.Context(), sessionID))
}

// WithLanguage sets the request language.
func WithLanguage(req *http.Request, lang string) *http.Request {
	return req.WithContext(requestcontext.WithLanguage(req.Context(), lang))
}

// WithClientIP sets the client address the rate limiter keys on.
func WithClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, req.UserAgent()))
}
