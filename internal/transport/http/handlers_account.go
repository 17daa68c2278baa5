package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	accountModel "cloudgate/internal/account/models"
	"cloudgate/internal/platform/middleware"
	dErrors "cloudgate/pkg/domain-errors"
	"cloudgate/pkg/platform/httputil"
	"cloudgate/pkg/requestcontext"
)

// Route paths served by the account handler.
const (
	SignUpPageURL                 = "/ibm/bluemix/appid/view/sign_up"
	ForgotPasswordPageURL         = "/ibm/bluemix/appid/view/forgot_password"
	AccountConfirmedPageURL       = "/ibm/bluemix/appid/view/account_confirmed"
	SignUpSubmitURL               = "/sign_up/submit"
	SignUpMobileSubmitURL         = "/sign_up/mobile/submit"
	ForgotPasswordSubmitURL       = "/forgot_password/submit"
	ForgotPasswordMobileSubmitURL = "/forgot_password/mobile/submit"
	ResendNotificationURL         = "/resend_notification"
)

// mobileGenericError is the body of every server-class JSON failure.
const mobileGenericError = "Something went wrong"

// maxJSONBody bounds the mobile request bodies.
const maxJSONBody = 64 << 10

//go:generate mockgen -source=handlers_account.go -destination=mocks/account-mocks.go -package=mocks AccountService

// AccountService is the account lifecycle service as seen by the HTTP layer.
type AccountService interface {
	SignUp(ctx context.Context, record accountModel.UserRecord, language string) (*accountModel.Profile, error)
	ForgotPassword(ctx context.Context, email, language string) (*accountModel.Profile, error)
	ResendNotification(ctx context.Context, uuid, templateName, language string) accountModel.ResendOutcome
}

// AccountHandler serves the self-service account routes.
type AccountHandler struct {
	accounts AccountService
	renderer *Renderer
	logger   *slog.Logger
	limiter  *middleware.RateLimiter
}

// NewAccountHandler creates the handler. limiter may be nil.
func NewAccountHandler(accounts AccountService, renderer *Renderer, logger *slog.Logger, limiter *middleware.RateLimiter) *AccountHandler {
	return &AccountHandler{accounts: accounts, renderer: renderer, logger: logger, limiter: limiter}
}

// Register registers the account routes with the chi router.
func (h *AccountHandler) Register(r chi.Router) {
	r.Get(SignUpPageURL, h.handleSignUpPage)
	r.Get(ForgotPasswordPageURL, h.handleForgotPasswordPage)
	r.Get(AccountConfirmedPageURL, h.handleAccountConfirmedPage)

	r.Group(func(r chi.Router) {
		r.Use(rateLimited(h.limiter, "account"))
		r.Post(SignUpSubmitURL, h.handleSignUpSubmit)
		r.Post(SignUpMobileSubmitURL, h.handleSignUpMobile)
		r.Post(ForgotPasswordSubmitURL, h.handleForgotPasswordSubmit)
		r.Post(ForgotPasswordMobileSubmitURL, h.handleForgotPasswordMobile)
		r.Post(ResendNotificationURL, h.handleResendNotification)
	})
}

func (h *AccountHandler) handleSignUpPage(w http.ResponseWriter, r *http.Request) {
	lang := requestcontext.Language(r.Context())
	h.renderer.render(w, r, http.StatusOK, "sign_up", h.renderer.page(lang, "signUpTitle"))
}

func (h *AccountHandler) handleForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	lang := requestcontext.Language(r.Context())
	h.renderer.render(w, r, http.StatusOK, "forgot_password", h.renderer.page(lang, "forgotPasswordTitle"))
}

// handleAccountConfirmedPage shows the outcome the directory reports when
// the user follows the verification link.
func (h *AccountHandler) handleAccountConfirmedPage(w http.ResponseWriter, r *http.Request) {
	lang := requestcontext.Language(r.Context())
	q := r.URL.Query()
	page := h.renderer.page(lang, "accountConfirmed")
	page.Confirmation = &confirmationView{
		Error:            q.Get("error"),
		ErrorCode:        q.Get("error_code"),
		ErrorDescription: q.Get("error_description"),
		UUID:             q.Get("uuid"),
	}
	h.renderer.render(w, r, http.StatusOK, "account_confirmed", page)
}

func signUpFormFrom(r *http.Request) accountModel.SignUpForm {
	return accountModel.SignUpForm{
		Email:             strings.TrimSpace(r.PostForm.Get("email")),
		Password:          r.PostForm.Get("password"),
		ConfirmedPassword: r.PostForm.Get("confirmed_password"),
		FirstName:         strings.TrimSpace(r.PostForm.Get("firstName")),
		LastName:          strings.TrimSpace(r.PostForm.Get("lastName")),
		PhoneNumber:       strings.TrimSpace(r.PostForm.Get("phoneNumber")),
		Language:          r.PostForm.Get("language"),
	}
}

// previousInputs repopulates the sign-up form. Passwords are never echoed.
func previousInputs(f accountModel.SignUpForm) map[string]string {
	return map[string]string{
		"email":       f.Email,
		"firstName":   f.FirstName,
		"lastName":    f.LastName,
		"phoneNumber": f.PhoneNumber,
	}
}

func (h *AccountHandler) handleSignUpSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lang := requestcontext.Language(ctx)
	if err := r.ParseForm(); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}
	form := signUpFormFrom(r)

	profile, err := h.accounts.SignUp(ctx, form.UserRecord(), lang)
	if err != nil {
		opErr, ok := clientInputError(err)
		if !ok {
			h.logServerFailure(r, "sign up", err)
			h.renderer.generalError(w, lang)
			return
		}
		page := h.renderer.page(lang, "signUpTitle")
		page.Form = previousInputs(form)
		page.Message = h.renderer.errorMessage(lang, opErr.MessageKey())
		h.renderer.render(w, r, opErr.Code, "sign_up", page)
		return
	}

	page := h.renderer.page(lang, "thanksForSignUp")
	page.Profile = profile
	h.renderer.render(w, r, http.StatusOK, "thanks_for_sign_up", page)
}

func (h *AccountHandler) handleSignUpMobile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var form accountModel.SignUpForm
	if err := decodeJSON(w, r, &form); err != nil {
		httputil.WriteError(w, err)
		return
	}

	profile, err := h.accounts.SignUp(ctx, form.UserRecord(), requestcontext.Language(ctx))
	if err != nil {
		h.writeMobileError(w, r, "sign up", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, profile)
}

func (h *AccountHandler) handleForgotPasswordSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lang := requestcontext.Language(ctx)
	if err := r.ParseForm(); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))

	profile, err := h.accounts.ForgotPassword(ctx, email, lang)
	if err != nil {
		opErr, ok := clientInputError(err)
		if !ok {
			h.logServerFailure(r, "forgot password", err)
			h.renderer.generalError(w, lang)
			return
		}
		page := h.renderer.page(lang, "forgotPasswordTitle")
		page.Form = map[string]string{"email": email}
		page.Message = h.renderer.errorMessage(lang, opErr.MessageKey())
		h.renderer.render(w, r, opErr.Code, "forgot_password", page)
		return
	}

	page := h.renderer.page(lang, "resetPasswordSent")
	page.Profile = profile
	h.renderer.render(w, r, http.StatusOK, "reset_password_sent", page)
}

func (h *AccountHandler) handleForgotPasswordMobile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}

	profile, err := h.accounts.ForgotPassword(ctx, body.Email, requestcontext.Language(ctx))
	if err != nil {
		h.writeMobileError(w, r, "forgot password", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, profile)
}

// handleResendNotification always answers 200; the body is the localized
// outcome message.
func (h *AccountHandler) handleResendNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lang := requestcontext.Language(ctx)
	if err := r.ParseForm(); err != nil {
		h.renderer.text(w, http.StatusOK, h.renderer.catalog.Message(lang, accountModel.ResendTryLater.String()))
		return
	}

	outcome := h.accounts.ResendNotification(ctx, r.PostForm.Get("uuid"), r.PostForm.Get("templateName"), lang)
	h.renderer.text(w, http.StatusOK, h.renderer.catalog.Message(lang, outcome.String()))
}

// writeMobileError reports client input failures with their status and
// directory message; everything else is a bare 500.
func (h *AccountHandler) writeMobileError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	if opErr, ok := clientInputError(err); ok {
		httputil.WriteJSON(w, opErr.Code, httputil.ErrorResponse{
			Error:            opErr.MessageKey(),
			ErrorDescription: opErr.Message,
		})
		return
	}
	h.logServerFailure(r, operation, err)
	httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
		Error:            string(dErrors.CodeInternal),
		ErrorDescription: mobileGenericError,
	})
}

func (h *AccountHandler) logServerFailure(r *http.Request, operation string, err error) {
	h.logger.ErrorContext(r.Context(), operation+" failed",
		"error", err,
		"request_id", requestID(r),
	)
}

func clientInputError(err error) (*accountModel.OperationError, bool) {
	var opErr *accountModel.OperationError
	if errors.As(err, &opErr) && opErr.IsClientInput() {
		return opErr, true
	}
	return nil, false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return dErrors.New(dErrors.CodeInvalidRequest, "invalid json body")
	}
	return nil
}
