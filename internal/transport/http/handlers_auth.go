package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	authModel "cloudgate/internal/auth/models"
	authService "cloudgate/internal/auth/service"
	"cloudgate/internal/i18n"
	"cloudgate/internal/platform/middleware"
	dErrors "cloudgate/pkg/domain-errors"
	"cloudgate/pkg/platform/httputil"
	"cloudgate/pkg/requestcontext"
)

// Route paths served by the auth handler.
const (
	LandingPageURL  = "/cloud-directory-app-sample.html"
	CallbackURL     = "/ibm/bluemix/appid/callback"
	LogoutURL       = "/ibm/bluemix/appid/logout"
	ROPLoginPageURL = "/ibm/bluemix/appid/rop/login"
	ROPSubmitURL    = "/rop/login/submit"
	ProtectedURL    = "/protected"
)

//go:generate mockgen -source=handlers_auth.go -destination=mocks/auth-mocks.go -package=mocks AuthService

// AuthService is the auth orchestrator as seen by the HTTP layer.
type AuthService interface {
	BeginAuthorization(ctx context.Context, sessionID, originalURL, language string) (*authService.AuthorizationRedirect, error)
	CompleteCallback(ctx context.Context, sessionID string, params authService.CallbackParams) (*authService.CallbackResult, error)
	Logout(ctx context.Context, sessionID string) error
	AuthenticateWithCredentials(ctx context.Context, sessionID, username, password string) (*authModel.Principal, error)
	CurrentPrincipal(ctx context.Context, sessionID string) (*authModel.Principal, error)
	TakeFlash(ctx context.Context, sessionID string) (string, error)
}

// AuthHandler serves the browser authentication routes.
type AuthHandler struct {
	auth     AuthService
	renderer *Renderer
	logger   *slog.Logger
	limiter  *middleware.RateLimiter
}

// NewAuthHandler creates the handler. limiter may be nil.
func NewAuthHandler(auth AuthService, renderer *Renderer, logger *slog.Logger, limiter *middleware.RateLimiter) *AuthHandler {
	return &AuthHandler{auth: auth, renderer: renderer, logger: logger, limiter: limiter}
}

// Register registers the auth routes with the chi router.
func (h *AuthHandler) Register(r chi.Router) {
	r.Get(LandingPageURL, h.handleLanding)
	r.Get(CallbackURL, h.handleCallback)
	r.Get(LogoutURL, h.handleLogout)
	r.Get(ROPLoginPageURL, h.handleLoginPage)
	r.With(rateLimited(h.limiter, ROPSubmitURL)).Post(ROPSubmitURL, h.handleLoginSubmit)
	r.With(middleware.RequireAuthenticated(h.auth, h.logger)).Get(ProtectedURL, h.handleProtected)
}

type principalView struct {
	Subject  string         `json:"sub"`
	Name     string         `json:"name,omitempty"`
	Email    string         `json:"email,omitempty"`
	IssuedAt time.Time      `json:"issued_at"`
	Claims   map[string]any `json:"claims"`
}

// newPrincipalView exposes identity claims only; tokens stay server-side.
func newPrincipalView(p *authModel.Principal) *principalView {
	if p == nil {
		return nil
	}
	return &principalView{
		Subject:  p.SubjectID(),
		Name:     p.Claim("name"),
		Email:    p.Claim("email"),
		IssuedAt: p.IssuedAt(),
		Claims:   p.Claims(),
	}
}

func (h *AuthHandler) handleLanding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lang := requestcontext.Language(ctx)

	principal, err := h.auth.CurrentPrincipal(ctx, requestcontext.SessionID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load principal for landing page",
			"error", err,
			"request_id", requestID(r),
		)
		h.renderer.generalError(w, lang)
		return
	}
	page := h.renderer.page(lang, "welcome")
	page.Principal = newPrincipalView(principal)
	h.renderer.render(w, r, http.StatusOK, "landing", page)
}

func (h *AuthHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lang := requestcontext.Language(ctx)
	q := r.URL.Query()

	result, err := h.auth.CompleteCallback(ctx, requestcontext.SessionID(ctx), authService.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})
	if err != nil {
		h.renderAuthFailure(w, r, lang, err)
		return
	}
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// renderAuthFailure shows the landing page with a localized reason. State
// failures and rejected authentications are 401; anything else is a 500
// with the generic message.
func (h *AuthHandler) renderAuthFailure(w http.ResponseWriter, r *http.Request, lang string, err error) {
	var stateErr *authModel.InvalidStateError
	var authErr *authModel.AuthenticationError
	key := ""
	switch {
	case errors.As(err, &stateErr):
		key = i18n.GeneralError
	case errors.As(err, &authErr):
		key = authErr.Code
	default:
		h.logger.ErrorContext(r.Context(), "callback failed",
			"error", err,
			"request_id", requestID(r),
		)
		h.renderer.generalError(w, lang)
		return
	}
	page := h.renderer.page(lang, "welcome")
	page.Message = h.renderer.errorMessage(lang, key)
	h.renderer.render(w, r, http.StatusUnauthorized, "landing", page)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.auth.Logout(ctx, requestcontext.SessionID(ctx)); err != nil {
		h.logger.ErrorContext(ctx, "logout failed",
			"error", err,
			"request_id", requestID(r),
		)
		h.renderer.generalError(w, requestcontext.Language(ctx))
		return
	}
	http.Redirect(w, r, LandingPageURL, http.StatusFound)
}

func (h *AuthHandler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lang := requestcontext.Language(ctx)

	code, err := h.auth.TakeFlash(ctx, requestcontext.SessionID(ctx))
	if err != nil {
		// the page is still usable without the previous error
		h.logger.WarnContext(ctx, "failed to read login flash",
			"error", err,
			"request_id", requestID(r),
		)
	}
	page := h.renderer.page(lang, "loginTitle")
	page.Message = h.renderer.errorMessage(lang, code)
	h.renderer.render(w, r, http.StatusOK, "login", page)
}

func (h *AuthHandler) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lang := requestcontext.Language(ctx)
	languageQuery := "?language=" + url.QueryEscape(lang)

	if err := r.ParseForm(); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	if username == "" {
		username = strings.TrimSpace(r.PostForm.Get("email"))
	}

	_, err := h.auth.AuthenticateWithCredentials(ctx, requestcontext.SessionID(ctx), username, r.PostForm.Get("password"))
	if err != nil {
		var authErr *authModel.AuthenticationError
		if errors.As(err, &authErr) {
			// the orchestrator has already placed the code in the flash slot
			http.Redirect(w, r, ROPLoginPageURL+languageQuery, http.StatusFound)
			return
		}
		h.logger.ErrorContext(ctx, "password login failed",
			"error", err,
			"request_id", requestID(r),
		)
		h.renderer.generalError(w, lang)
		return
	}
	http.Redirect(w, r, LandingPageURL+languageQuery, http.StatusFound)
}

func (h *AuthHandler) handleProtected(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, newPrincipalView(middleware.GetPrincipal(r.Context())))
}
