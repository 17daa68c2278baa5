package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloudgate/internal/audit"
	"cloudgate/internal/auth/models"
	"cloudgate/internal/auth/token"
	"cloudgate/pkg/requestcontext"
)

// AuthorizationRedirect is the outcome of BeginAuthorization.
type AuthorizationRedirect struct {
	URL           string
	TransactionID string
}

// CallbackParams are the query parameters the IdP sends to the callback.
type CallbackParams struct {
	Code  string
	State string
	// Error is set when the IdP refused the authorization (e.g. access_denied).
	Error string
}

// CallbackResult is the outcome of a successful CompleteCallback.
type CallbackResult struct {
	RedirectURL string
	Principal   *models.Principal
}

// BeginAuthorization records a new transaction on the session, replacing
// any stale one, and returns the IdP redirect.
func (s *Service) BeginAuthorization(ctx context.Context, sessionID, originalURL, language string) (*AuthorizationRedirect, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	tx := &models.AuthorizationTransaction{
		ID:               s.newTransactionID(),
		OriginalURL:      localPath(originalURL),
		CreatedAt:        now,
		PendingGrantType: models.GrantAuthorizationCode,
	}
	session.BeginTransaction(tx, now)
	if err := s.saveSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "authorization started",
		"session", sessionRef(sessionID),
		"has_original_url", tx.OriginalURL != "",
	)
	return &AuthorizationRedirect{
		URL:           s.tokens.AuthCodeURL(tx.ID, language),
		TransactionID: tx.ID,
	}, nil
}

// CompleteCallback validates state against the pending transaction,
// exchanges the code and publishes the principal. The transaction is
// consumed on every outcome; a failed callback requires a new
// BeginAuthorization.
func (s *Service) CompleteCallback(ctx context.Context, sessionID string, params CallbackParams) (*CallbackResult, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	tx := session.PendingTransaction
	if tx == nil {
		s.metrics.IncAuthOutcome("authorization_code", "invalid_state")
		s.authFailure(ctx, "authorization_code", "no_pending_transaction", false, "session", sessionRef(sessionID))
		return nil, &models.InvalidStateError{Reason: "no pending transaction"}
	}

	if stateErr := s.checkTransaction(tx, params.State, now); stateErr != nil {
		s.abandonTransaction(ctx, session, now)
		s.metrics.IncAuthOutcome("authorization_code", "invalid_state")
		s.authFailure(ctx, "authorization_code", "state_check_failed", false,
			"session", sessionRef(sessionID),
			"detail", stateErr.Reason,
		)
		return nil, stateErr
	}

	if params.Error != "" {
		s.abandonTransaction(ctx, session, now)
		s.metrics.IncAuthOutcome("authorization_code", "denied")
		s.authFailure(ctx, "authorization_code", "provider_denied", false, "provider_error", params.Error)
		return nil, &models.AuthenticationError{Code: params.Error}
	}

	start := time.Now()
	set, err := s.tokens.Exchange(ctx, token.Grant{Type: models.GrantAuthorizationCode, Code: params.Code})
	s.metrics.ObserveTokenExchange(models.GrantAuthorizationCode.String(), start)
	if err != nil {
		s.abandonTransaction(ctx, session, now)
		return nil, s.exchangeFailure(ctx, "authorization_code", err)
	}

	principal, err := s.principalFrom(ctx, set)
	if err != nil {
		s.abandonTransaction(ctx, session, now)
		s.metrics.IncAuthOutcome("authorization_code", "invalid_token")
		s.authFailure(ctx, "authorization_code", "identity_token_rejected", true, "error", err)
		return nil, &models.AuthenticationError{Code: models.ErrorCodeInvalidToken, Err: err}
	}

	session.Authenticate(principal, now)
	if err := s.saveSession(ctx, session); err != nil {
		return nil, err
	}

	s.metrics.IncAuthOutcome("authorization_code", "success")
	s.logAudit(ctx, audit.Event{
		Action:  audit.ActionAuthenticated,
		Flow:    "authorization_code",
		Subject: principal.SubjectID(),
		Session: sessionRef(sessionID),
	})
	return &CallbackResult{
		RedirectURL: resolveRedirect(tx.OriginalURL, s.cfg.DefaultSuccessURL),
		Principal:   principal,
	}, nil
}

func (s *Service) checkTransaction(tx *models.AuthorizationTransaction, state string, now time.Time) *models.InvalidStateError {
	if state == "" || state != tx.ID {
		return &models.InvalidStateError{Reason: "state mismatch"}
	}
	if tx.Expired(now, s.cfg.TransactionTTL) {
		return &models.InvalidStateError{Reason: "transaction expired"}
	}
	return nil
}

// abandonTransaction clears the pending transaction after a failed
// callback. A save failure here is logged; the caller already has a
// terminal error to report.
func (s *Service) abandonTransaction(ctx context.Context, session *models.Session, now time.Time) {
	session.ClearTransaction(now)
	if err := s.saveSession(ctx, session); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear authorization transaction",
			"error", err,
			"session", sessionRef(session.ID),
		)
	}
}

// exchangeFailure converts a token endpoint failure into an
// AuthenticationError carrying the provider code when one exists.
func (s *Service) exchangeFailure(ctx context.Context, flow string, err error) *models.AuthenticationError {
	code := models.ErrorCodeGeneral
	var exErr *token.ExchangeError
	transport := true
	if errors.As(err, &exErr) && exErr.HTTPStatus != 0 {
		transport = false
		if exErr.ErrorCode != "" {
			code = exErr.ErrorCode
		}
	}

	s.metrics.IncAuthOutcome(flow, "exchange_failed")
	if transport {
		s.authFailure(ctx, flow, "token_endpoint_unreachable", true, "error", err)
	} else {
		s.authFailure(ctx, flow, "token_exchange_rejected", exErr.HTTPStatus >= 500,
			"status", exErr.HTTPStatus,
			"provider_code", code,
		)
	}
	return &models.AuthenticationError{Code: code, Err: err}
}

// resolveRedirect picks the post-login target: the URL that triggered
// authentication, then the configured default, then the application root.
func resolveRedirect(originalURL, defaultURL string) string {
	if originalURL != "" {
		return originalURL
	}
	if defaultURL != "" {
		return defaultURL
	}
	return "/"
}

// localPath keeps originalURL only when it is a same-origin path, so the
// callback cannot be used as an open redirect.
func localPath(originalURL string) string {
	if !strings.HasPrefix(originalURL, "/") || strings.HasPrefix(originalURL, "//") || strings.HasPrefix(originalURL, "/\\") {
		return ""
	}
	return originalURL
}
