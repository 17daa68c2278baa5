// Package service orchestrates the browser authorization code flow and the
// direct (resource owner password, custom identity) flows against the IdP.
// Each operation returns a result or a typed error; sessions are mutated
// only here and only through the SessionStore.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cloudgate/internal/audit"
	"cloudgate/internal/auth/models"
	"cloudgate/internal/auth/token"
	"cloudgate/internal/platform/metrics"
	dErrors "cloudgate/pkg/domain-errors"
	"cloudgate/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks SessionStore,TokenExchanger,IdentityVerifier

// SessionStore persists sessions and their one-time flash slot.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	SetFlash(ctx context.Context, id, code string) error
	TakeFlash(ctx context.Context, id string) (string, error)
}

// TokenExchanger talks to the IdP authorization and token endpoints.
type TokenExchanger interface {
	AuthCodeURL(state, language string) string
	Exchange(ctx context.Context, grant token.Grant) (*models.TokenSet, error)
}

// IdentityVerifier validates identity tokens returned by the IdP.
type IdentityVerifier interface {
	Verify(ctx context.Context, raw string) (*token.IdentityClaims, error)
}

// Auditor records security events off the request path.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event)
}

// Config holds the flow settings injected at construction.
type Config struct {
	// DefaultSuccessURL is used after a callback when the transaction
	// recorded no original URL.
	DefaultSuccessURL string
	// TransactionTTL bounds how long a pending authorization may wait for
	// its callback. Zero means DefaultTransactionTTL.
	TransactionTTL time.Duration
}

// DefaultTransactionTTL applies when Config.TransactionTTL is unset.
const DefaultTransactionTTL = 10 * time.Minute

// Service is the auth orchestrator.
type Service struct {
	sessions SessionStore
	tokens   TokenExchanger
	verifier IdentityVerifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  Auditor
	cfg      Config

	newTransactionID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records flow outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditor sends authentication and logout events to a.
func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithTransactionIDGenerator overrides how state values are minted.
func WithTransactionIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newTransactionID = fn
		}
	}
}

// New constructs the orchestrator.
func New(sessions SessionStore, tokens TokenExchanger, verifier IdentityVerifier, logger *slog.Logger, cfg Config, opts ...Option) *Service {
	if cfg.TransactionTTL == 0 {
		cfg.TransactionTTL = DefaultTransactionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		sessions:         sessions,
		tokens:           tokens,
		verifier:         verifier,
		logger:           logger,
		cfg:              cfg,
		newTransactionID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentPrincipal returns the principal bound to the session, or nil.
func (s *Service) CurrentPrincipal(ctx context.Context, sessionID string) (*models.Principal, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Principal, nil
}

// TakeFlash returns the one-time error code for the session and clears it.
func (s *Service) TakeFlash(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", nil
	}
	code, err := s.sessions.TakeFlash(ctx, sessionID)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read flash")
	}
	return code, nil
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session id required")
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session, nil
}

func (s *Service) saveSession(ctx context.Context, session *models.Session) error {
	if err := s.sessions.Save(ctx, session); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}
	return nil
}

// principalFrom verifies the identity token and builds the principal.
// Nothing is published until this returns successfully.
func (s *Service) principalFrom(ctx context.Context, set *models.TokenSet) (*models.Principal, error) {
	claims, err := s.verifier.Verify(ctx, set.IdentityToken)
	if err != nil {
		return nil, err
	}
	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = requestcontext.Now(ctx)
	}
	return models.NewPrincipal(claims.Subject, claims.Claims, issuedAt, *set), nil
}

// logAudit records a completed action. Without an auditor the event is
// logged inline.
func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	event = s.stamp(ctx, event)
	if s.auditor != nil {
		s.auditor.Emit(ctx, event)
		return
	}
	s.logger.InfoContext(ctx, event.Action, "event", event)
}

// authFailure logs a failed attempt. Transport-level failures are errors;
// rejected credentials are expected traffic and logged at warn.
func (s *Service) authFailure(ctx context.Context, flow, reason string, isError bool, attrs ...any) {
	args := append([]any{"flow", flow, "reason", reason, "request_id", requestcontext.RequestID(ctx)}, attrs...)
	if isError {
		s.logger.ErrorContext(ctx, "authentication failed", args...)
	} else {
		s.logger.WarnContext(ctx, "authentication failed", args...)
	}
	if s.auditor != nil {
		s.auditor.Emit(ctx, s.stamp(ctx, audit.Event{
			Action:  audit.ActionAuthenticationFailed,
			Flow:    flow,
			Session: sessionRef(requestcontext.SessionID(ctx)),
			Reason:  reason,
		}))
	}
}

func (s *Service) stamp(ctx context.Context, event audit.Event) audit.Event {
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	return event
}

// sessionRef shortens a session id for logs.
func sessionRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
