package service

import (
	"context"
	"time"

	"cloudgate/internal/audit"
	"cloudgate/internal/auth/models"
	"cloudgate/internal/auth/token"
	"cloudgate/pkg/requestcontext"
)

// AuthenticateWithCredentials runs the resource owner password flow.
// On failure the session is left as it was and the error code is placed in
// the session's flash slot for the next page render.
func (s *Service) AuthenticateWithCredentials(ctx context.Context, sessionID, username, password string) (*models.Principal, error) {
	if username == "" || password == "" {
		authErr := &models.AuthenticationError{Code: models.ErrorCodeMissingCredentials}
		s.metrics.IncAuthOutcome("password", "missing_credentials")
		s.flash(ctx, sessionID, authErr.Code)
		return nil, authErr
	}
	return s.authenticateDirect(ctx, sessionID, token.Grant{
		Type:     models.GrantPassword,
		Username: username,
		Password: password,
	})
}

// AuthenticateWithAssertion exchanges a signed identity assertion using
// the jwt-bearer grant and binds the resulting principal to the session.
func (s *Service) AuthenticateWithAssertion(ctx context.Context, sessionID, assertion string) (*models.Principal, error) {
	return s.authenticateDirect(ctx, sessionID, token.Grant{
		Type:      models.GrantJWTBearer,
		Assertion: assertion,
	})
}

func (s *Service) authenticateDirect(ctx context.Context, sessionID string, grant token.Grant) (*models.Principal, error) {
	flow := grant.Type.String()
	if grant.Type == models.GrantJWTBearer {
		flow = "jwt_bearer"
	}

	start := time.Now()
	set, err := s.tokens.Exchange(ctx, grant)
	s.metrics.ObserveTokenExchange(grant.Type.String(), start)
	if err != nil {
		authErr := s.exchangeFailure(ctx, flow, err)
		s.flash(ctx, sessionID, authErr.Code)
		return nil, authErr
	}

	principal, err := s.principalFrom(ctx, set)
	if err != nil {
		s.metrics.IncAuthOutcome(flow, "invalid_token")
		s.authFailure(ctx, flow, "identity_token_rejected", true, "error", err)
		s.flash(ctx, sessionID, models.ErrorCodeInvalidToken)
		return nil, &models.AuthenticationError{Code: models.ErrorCodeInvalidToken, Err: err}
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Authenticate(principal, requestcontext.Now(ctx))
	if err := s.saveSession(ctx, session); err != nil {
		return nil, err
	}

	s.metrics.IncAuthOutcome(flow, "success")
	s.logAudit(ctx, audit.Event{
		Action:  audit.ActionAuthenticated,
		Flow:    flow,
		Subject: principal.SubjectID(),
		Session: sessionRef(sessionID),
	})
	return principal, nil
}

func (s *Service) flash(ctx context.Context, sessionID, code string) {
	if sessionID == "" {
		return
	}
	if err := s.sessions.SetFlash(ctx, sessionID, code); err != nil {
		s.logger.ErrorContext(ctx, "failed to set flash", "error", err, "session", sessionRef(sessionID))
	}
}
