package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"cloudgate/internal/auth/models"
	authservice "cloudgate/internal/auth/service"
	"cloudgate/pkg/platform/httputil"
	"cloudgate/pkg/requestcontext"
)

// AuthGate is the part of the auth orchestrator the guard needs.
type AuthGate interface {
	CurrentPrincipal(ctx context.Context, sessionID string) (*models.Principal, error)
	BeginAuthorization(ctx context.Context, sessionID, originalURL, language string) (*authservice.AuthorizationRedirect, error)
}

type contextKeyPrincipal struct{}

// GetPrincipal returns the principal placed on the context by
// RequireAuthenticated, or nil.
func GetPrincipal(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(contextKeyPrincipal{}).(*models.Principal)
	return p
}

// WithPrincipal places p on the context.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal{}, p)
}

// RequireAuthenticated lets requests with an authenticated session through
// and starts the authorization code flow for everything else, remembering
// the requested URI as the post-login target.
func RequireAuthenticated(gate AuthGate, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sessionID := requestcontext.SessionID(ctx)

			principal, err := gate.CurrentPrincipal(ctx, sessionID)
			if err != nil {
				logger.ErrorContext(ctx, "failed to load session principal",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			if principal != nil {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
				return
			}

			redirect, err := gate.BeginAuthorization(ctx, sessionID, r.URL.RequestURI(), requestcontext.Language(ctx))
			if err != nil {
				logger.ErrorContext(ctx, "failed to start authorization",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			http.Redirect(w, r, redirect.URL, http.StatusFound)
		})
	}
}
