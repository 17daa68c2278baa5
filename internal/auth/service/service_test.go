package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cloudgate/internal/audit"
	"cloudgate/internal/auth/models"
	"cloudgate/internal/auth/service/mocks"
	sessionstore "cloudgate/internal/auth/store/session"
	"cloudgate/internal/auth/token"
	dErrors "cloudgate/pkg/domain-errors"
	"cloudgate/pkg/requestcontext"
)

const testSessionID = "sid-test-0001"

type ServiceSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockTokens   *mocks.MockTokenExchanger
	mockVerifier *mocks.MockIdentityVerifier
	store        *sessionstore.InMemorySessionStore
	service      *Service
	now          time.Time
	ctx          context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockTokens = mocks.NewMockTokenExchanger(s.ctrl)
	s.mockVerifier = mocks.NewMockIdentityVerifier(s.ctrl)
	s.store = sessionstore.New()
	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.service = s.newService(Config{})
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) newService(cfg Config) *Service {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	n := 0
	return New(s.store, s.mockTokens, s.mockVerifier, logger, cfg,
		WithTransactionIDGenerator(func() string {
			n++
			return "tx-" + string(rune('0'+n))
		}),
	)
}

func (s *ServiceSuite) session() *models.Session {
	sess, err := s.store.Get(s.ctx, testSessionID)
	s.Require().NoError(err)
	return sess
}

func (s *ServiceSuite) fixedTokens() *models.TokenSet {
	return &models.TokenSet{AccessToken: "at", IdentityToken: "id.token.jwt", RefreshToken: "rt"}
}

func (s *ServiceSuite) expectSuccessfulExchange(grant models.GrantType, subject string) {
	s.mockTokens.EXPECT().Exchange(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, g token.Grant) (*models.TokenSet, error) {
			s.Equal(grant, g.Type)
			return s.fixedTokens(), nil
		})
	s.mockVerifier.EXPECT().Verify(gomock.Any(), "id.token.jwt").Return(&token.IdentityClaims{
		Subject:  subject,
		IssuedAt: s.now,
		Claims:   map[string]any{"sub": subject, "email": "ada@example.com"},
	}, nil)
}

func (s *ServiceSuite) begin(originalURL string) *AuthorizationRedirect {
	s.mockTokens.EXPECT().AuthCodeURL(gomock.Any(), "en").DoAndReturn(func(state, _ string) string {
		return "https://idp.example.com/authorization?state=" + state
	})
	redirect, err := s.service.BeginAuthorization(s.ctx, testSessionID, originalURL, "en")
	s.Require().NoError(err)
	return redirect
}

func (s *ServiceSuite) TestBeginAuthorization() {
	s.Run("records transaction with original url", func() {
		redirect := s.begin("/protected")

		sess := s.session()
		s.Require().NotNil(sess.PendingTransaction)
		s.Equal("/protected", sess.PendingTransaction.OriginalURL)
		s.Equal(redirect.TransactionID, sess.PendingTransaction.ID)
		s.Equal(models.GrantAuthorizationCode, sess.PendingTransaction.PendingGrantType)
		s.Equal("https://idp.example.com/authorization?state="+redirect.TransactionID, redirect.URL)
	})

	s.Run("overwrites a stale transaction", func() {
		first := s.begin("/first")
		second := s.begin("/second")

		sess := s.session()
		s.NotEqual(first.TransactionID, second.TransactionID)
		s.Equal(second.TransactionID, sess.PendingTransaction.ID)
		s.Equal("/second", sess.PendingTransaction.OriginalURL)
	})

	s.Run("drops off-site original urls", func() {
		s.begin("https://evil.example.com/phish")
		s.Empty(s.session().PendingTransaction.OriginalURL)

		s.begin("//evil.example.com")
		s.Empty(s.session().PendingTransaction.OriginalURL)
	})

	s.Run("requires a session id", func() {
		_, err := s.service.BeginAuthorization(s.ctx, "", "/", "en")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestCompleteCallback_Success() {
	s.Run("redirects to original url and publishes principal", func() {
		redirect := s.begin("/protected")
		s.expectSuccessfulExchange(models.GrantAuthorizationCode, "user-42")

		result, err := s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc", State: redirect.TransactionID})
		s.Require().NoError(err)
		s.Equal("/protected", result.RedirectURL)

		sess := s.session()
		s.Nil(sess.PendingTransaction)
		s.Require().NotNil(sess.Principal)
		s.Equal("user-42", sess.Principal.SubjectID())
		s.Equal("at", sess.Principal.Tokens().AccessToken)
		s.Equal("ada@example.com", sess.Principal.Claim("email"))
	})
}

func (s *ServiceSuite) TestCompleteCallback_RedirectPriority() {
	tests := []struct {
		name        string
		originalURL string
		defaultURL  string
		want        string
	}{
		{name: "original url wins", originalURL: "/protected", defaultURL: "/home", want: "/protected"},
		{name: "configured default next", originalURL: "", defaultURL: "/home", want: "/home"},
		{name: "application root last", originalURL: "", defaultURL: "", want: "/"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.store = sessionstore.New()
			s.service = s.newService(Config{DefaultSuccessURL: tt.defaultURL})
			redirect := s.begin(tt.originalURL)
			s.expectSuccessfulExchange(models.GrantAuthorizationCode, "user-1")

			result, err := s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc", State: redirect.TransactionID})
			s.Require().NoError(err)
			s.Equal(tt.want, result.RedirectURL)
		})
	}
}

func (s *ServiceSuite) TestCompleteCallback_InvalidState() {
	s.Run("no pending transaction", func() {
		s.mockTokens.EXPECT().Exchange(gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc", State: "anything"})

		var stateErr *models.InvalidStateError
		s.Require().ErrorAs(err, &stateErr)
	})

	s.Run("state mismatch consumes transaction", func() {
		s.begin("/protected")
		s.mockTokens.EXPECT().Exchange(gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc", State: "forged"})

		var stateErr *models.InvalidStateError
		s.Require().ErrorAs(err, &stateErr)
		s.Nil(s.session().PendingTransaction)
		s.Nil(s.session().Principal)
	})

	s.Run("empty state", func() {
		s.begin("/protected")

		_, err := s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc"})

		var stateErr *models.InvalidStateError
		s.Require().ErrorAs(err, &stateErr)
	})

	s.Run("stale transaction", func() {
		redirect := s.begin("/protected")
		later := requestcontext.WithTime(context.Background(), s.now.Add(DefaultTransactionTTL+time.Second))

		_, err := s.service.CompleteCallback(later, testSessionID, CallbackParams{Code: "abc", State: redirect.TransactionID})

		var stateErr *models.InvalidStateError
		s.Require().ErrorAs(err, &stateErr)
		s.Equal("transaction expired", stateErr.Reason)
	})
}

func (s *ServiceSuite) TestCompleteCallback_Failures() {
	s.Run("token exchange failure is terminal and clears transaction", func() {
		redirect := s.begin("/protected")
		s.mockTokens.EXPECT().Exchange(gomock.Any(), gomock.Any()).Return(nil, &token.ExchangeError{
			HTTPStatus: http.StatusBadRequest,
			ErrorCode:  "invalid_grant",
		}).Times(1)

		_, err := s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc", State: redirect.TransactionID})

		var authErr *models.AuthenticationError
		s.Require().ErrorAs(err, &authErr)
		s.Equal("invalid_grant", authErr.Code)
		sess := s.session()
		s.Nil(sess.PendingTransaction)
		s.Nil(sess.Principal)

		// retrying the same callback is now a state failure, not a second exchange
		_, err = s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc", State: redirect.TransactionID})
		var stateErr *models.InvalidStateError
		s.ErrorAs(err, &stateErr)
	})

	s.Run("transport failure maps to general error", func() {
		redirect := s.begin("/protected")
		s.mockTokens.EXPECT().Exchange(gomock.Any(), gomock.Any()).Return(nil, &token.ExchangeError{Err: context.DeadlineExceeded})

		_, err := s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc", State: redirect.TransactionID})

		var authErr *models.AuthenticationError
		s.Require().ErrorAs(err, &authErr)
		s.Equal(models.ErrorCodeGeneral, authErr.Code)
		s.ErrorIs(err, context.DeadlineExceeded)
	})

	s.Run("provider error on callback", func() {
		redirect := s.begin("/protected")
		s.mockTokens.EXPECT().Exchange(gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{State: redirect.TransactionID, Error: "access_denied"})

		var authErr *models.AuthenticationError
		s.Require().ErrorAs(err, &authErr)
		s.Equal("access_denied", authErr.Code)
		s.Nil(s.session().PendingTransaction)
	})

	s.Run("rejected identity token never publishes principal", func() {
		redirect := s.begin("/protected")
		s.mockTokens.EXPECT().Exchange(gomock.Any(), gomock.Any()).Return(s.fixedTokens(), nil)
		s.mockVerifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil, errors.New("bad signature"))

		_, err := s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc", State: redirect.TransactionID})

		var authErr *models.AuthenticationError
		s.Require().ErrorAs(err, &authErr)
		s.Equal(models.ErrorCodeInvalidToken, authErr.Code)
		s.Nil(s.session().Principal)
	})
}

func (s *ServiceSuite) TestCompleteCallback_SaveFailureLeavesNoPrincipal() {
	mockStore := mocks.NewMockSessionStore(s.ctrl)
	svc := New(mockStore, s.mockTokens, s.mockVerifier, slog.Default(), Config{})

	pending := models.NewSession(testSessionID, s.now)
	pending.BeginTransaction(&models.AuthorizationTransaction{ID: "tx-1", CreatedAt: s.now}, s.now)
	mockStore.EXPECT().Get(gomock.Any(), testSessionID).Return(pending, nil)
	s.expectSuccessfulExchange(models.GrantAuthorizationCode, "user-1")
	mockStore.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	_, err := svc.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc", State: "tx-1"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestLogout() {
	s.Run("no-op on unauthenticated session", func() {
		s.NoError(s.service.Logout(s.ctx, testSessionID))
		s.NoError(s.service.Logout(s.ctx, testSessionID))
		s.False(s.session().IsAuthenticated())
	})

	s.Run("clears principal and pending transaction", func() {
		redirect := s.begin("/protected")
		s.expectSuccessfulExchange(models.GrantAuthorizationCode, "user-1")
		_, err := s.service.CompleteCallback(s.ctx, testSessionID, CallbackParams{Code: "abc", State: redirect.TransactionID})
		s.Require().NoError(err)
		s.begin("/again")

		s.Require().NoError(s.service.Logout(s.ctx, testSessionID))

		sess := s.session()
		s.Nil(sess.Principal)
		s.Nil(sess.PendingTransaction)
	})

	s.Run("empty session id is a no-op", func() {
		s.NoError(s.service.Logout(s.ctx, ""))
	})
}

func (s *ServiceSuite) TestAuthenticateWithCredentials() {
	s.Run("success binds principal", func() {
		s.expectSuccessfulExchange(models.GrantPassword, "user-7")

		principal, err := s.service.AuthenticateWithCredentials(s.ctx, testSessionID, "ada@example.com", "pw")
		s.Require().NoError(err)
		s.Equal("user-7", principal.SubjectID())
		s.Equal("user-7", s.session().Principal.SubjectID())

		flash, err := s.service.TakeFlash(s.ctx, testSessionID)
		s.Require().NoError(err)
		s.Empty(flash)
	})

	s.Run("failure keeps session untouched and flashes provider code once", func() {
		s.store = sessionstore.New()
		s.service = s.newService(Config{})
		s.begin("/protected")
		before := s.session()

		s.mockTokens.EXPECT().Exchange(gomock.Any(), gomock.Any()).Return(nil, &token.ExchangeError{
			HTTPStatus: http.StatusBadRequest,
			ErrorCode:  "INVALID_CREDENTIALS",
		})

		_, err := s.service.AuthenticateWithCredentials(s.ctx, testSessionID, "ada@example.com", "wrong")

		var authErr *models.AuthenticationError
		s.Require().ErrorAs(err, &authErr)
		s.Equal("INVALID_CREDENTIALS", authErr.Code)

		after := s.session()
		s.Equal(before, after)

		flash, err := s.service.TakeFlash(s.ctx, testSessionID)
		s.Require().NoError(err)
		s.Equal("INVALID_CREDENTIALS", flash)
		flash, err = s.service.TakeFlash(s.ctx, testSessionID)
		s.Require().NoError(err)
		s.Empty(flash)
	})

	s.Run("missing credentials fail before any network call", func() {
		s.mockTokens.EXPECT().Exchange(gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.AuthenticateWithCredentials(s.ctx, testSessionID, "", "")

		var authErr *models.AuthenticationError
		s.Require().ErrorAs(err, &authErr)
		s.Equal(models.ErrorCodeMissingCredentials, authErr.Code)
	})
}

func (s *ServiceSuite) TestAuthenticateWithAssertion() {
	s.mockTokens.EXPECT().Exchange(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, g token.Grant) (*models.TokenSet, error) {
			s.Equal(models.GrantJWTBearer, g.Type)
			s.Equal("signed.assertion", g.Assertion)
			return s.fixedTokens(), nil
		})
	s.mockVerifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&token.IdentityClaims{Subject: "custom-1"}, nil)

	principal, err := s.service.AuthenticateWithAssertion(s.ctx, testSessionID, "signed.assertion")
	s.Require().NoError(err)
	s.Equal("custom-1", principal.SubjectID())
	s.Equal(s.now, principal.IssuedAt())
}

func (s *ServiceSuite) TestCurrentPrincipal() {
	p, err := s.service.CurrentPrincipal(s.ctx, testSessionID)
	s.Require().NoError(err)
	s.Nil(p)

	s.expectSuccessfulExchange(models.GrantPassword, "user-9")
	_, err = s.service.AuthenticateWithCredentials(s.ctx, testSessionID, "u", "p")
	s.Require().NoError(err)

	p, err = s.service.CurrentPrincipal(s.ctx, testSessionID)
	s.Require().NoError(err)
	s.Equal("user-9", p.SubjectID())
}

type recordingAuditor struct {
	events []audit.Event
}

func (r *recordingAuditor) Emit(_ context.Context, event audit.Event) {
	r.events = append(r.events, event)
}

func (s *ServiceSuite) TestAuditTrail() {
	recorder := &recordingAuditor{}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.service = New(s.store, s.mockTokens, s.mockVerifier, logger, Config{}, WithAuditor(recorder))
	ctx := requestcontext.WithRequestID(s.ctx, "req-1")

	s.expectSuccessfulExchange(models.GrantPassword, "user-3")
	_, err := s.service.AuthenticateWithCredentials(ctx, testSessionID, "u", "p")
	s.Require().NoError(err)
	s.Require().NoError(s.service.Logout(ctx, testSessionID))

	_, err = s.service.CompleteCallback(ctx, testSessionID, CallbackParams{Code: "abc", State: "nope"})
	s.Require().Error(err)

	s.Require().Len(recorder.events, 3)
	s.Equal(audit.ActionAuthenticated, recorder.events[0].Action)
	s.Equal("password", recorder.events[0].Flow)
	s.Equal("user-3", recorder.events[0].Subject)
	s.Equal(testSessionID[:8], recorder.events[0].Session)
	s.Equal("req-1", recorder.events[0].RequestID)
	s.Equal(s.now, recorder.events[0].Timestamp)

	s.Equal(audit.ActionLoggedOut, recorder.events[1].Action)
	s.Equal("user-3", recorder.events[1].Subject)

	s.Equal(audit.ActionAuthenticationFailed, recorder.events[2].Action)
	s.Equal("authorization_code", recorder.events[2].Flow)
	s.Equal("no_pending_transaction", recorder.events[2].Reason)
}
