package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cloudgate/internal/auth/models"
	"cloudgate/pkg/requestcontext"
)

type SessionStoreSuite struct {
	suite.Suite
	store *InMemorySessionStore
}

func (s *SessionStoreSuite) SetupTest() {
	s.store = New(WithTTL(time.Hour))
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) TestGetCreatesEmptySessionOnFirstReference() {
	sess, err := s.store.Get(context.Background(), "sid-1")
	s.Require().NoError(err)
	s.Equal("sid-1", sess.ID)
	s.Nil(sess.Principal)
	s.Nil(sess.PendingTransaction)
}

func (s *SessionStoreSuite) TestSaveThenGet() {
	ctx := context.Background()
	sess, err := s.store.Get(ctx, "sid-1")
	s.Require().NoError(err)
	sess.BeginTransaction(&models.AuthorizationTransaction{ID: "tx-1", OriginalURL: "/protected"}, time.Now())
	s.Require().NoError(s.store.Save(ctx, sess))

	found, err := s.store.Get(ctx, "sid-1")
	s.Require().NoError(err)
	s.Require().NotNil(found.PendingTransaction)
	s.Equal("/protected", found.PendingTransaction.OriginalURL)
}

func (s *SessionStoreSuite) TestReturnedSessionIsACopy() {
	ctx := context.Background()
	sess, _ := s.store.Get(ctx, "sid-1")
	sess.BeginTransaction(&models.AuthorizationTransaction{ID: "tx-1"}, time.Now())
	s.Require().NoError(s.store.Save(ctx, sess))

	// mutating after save must not leak into the store
	sess.PendingTransaction.ID = "tampered"

	found, _ := s.store.Get(ctx, "sid-1")
	s.Equal("tx-1", found.PendingTransaction.ID)
}

func (s *SessionStoreSuite) TestExpiredSessionIsReplaced() {
	start := time.Now()
	ctx := requestcontext.WithTime(context.Background(), start)
	sess, _ := s.store.Get(ctx, "sid-1")
	sess.Authenticate(models.NewPrincipal("sub", nil, start, models.TokenSet{}), start)
	s.Require().NoError(s.store.Save(ctx, sess))

	later := requestcontext.WithTime(context.Background(), start.Add(2*time.Hour))
	found, err := s.store.Get(later, "sid-1")
	s.Require().NoError(err)
	s.False(found.IsAuthenticated())
}

func (s *SessionStoreSuite) TestGetSlidesExpiry() {
	start := time.Now()
	at := func(d time.Duration) context.Context {
		return requestcontext.WithTime(context.Background(), start.Add(d))
	}
	sess, _ := s.store.Get(at(0), "sid-1")
	sess.Authenticate(models.NewPrincipal("sub", nil, start, models.TokenSet{}), start)
	s.Require().NoError(s.store.Save(at(0), sess))

	_, err := s.store.Get(at(50*time.Minute), "sid-1")
	s.Require().NoError(err)

	found, err := s.store.Get(at(100*time.Minute), "sid-1")
	s.Require().NoError(err)
	s.True(found.IsAuthenticated(), "reads keep the session alive")
	s.Equal(0, s.store.PurgeExpired(start.Add(150*time.Minute)))
	s.Equal(1, s.store.PurgeExpired(start.Add(161*time.Minute)))
}

func (s *SessionStoreSuite) TestFlashIsReadOnce() {
	ctx := context.Background()
	s.Require().NoError(s.store.SetFlash(ctx, "sid-1", "INVALID_CREDENTIALS"))

	code, err := s.store.TakeFlash(ctx, "sid-1")
	s.Require().NoError(err)
	s.Equal("INVALID_CREDENTIALS", code)

	code, err = s.store.TakeFlash(ctx, "sid-1")
	s.Require().NoError(err)
	s.Empty(code)
}

func (s *SessionStoreSuite) TestFlashIsScopedToSession() {
	ctx := context.Background()
	s.Require().NoError(s.store.SetFlash(ctx, "sid-1", "USER_LOCKED"))

	code, err := s.store.TakeFlash(ctx, "sid-2")
	s.Require().NoError(err)
	s.Empty(code)
}

func (s *SessionStoreSuite) TestPurgeExpired() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"sid-old", "sid-new"} {
		at := start
		if id == "sid-new" {
			at = start.Add(50 * time.Minute)
		}
		ctx := requestcontext.WithTime(context.Background(), at)
		sess, err := s.store.Get(ctx, id)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Save(ctx, sess))
		s.Require().NoError(s.store.SetFlash(ctx, id, "invalid_grant"))
	}

	removed := s.store.PurgeExpired(start.Add(90 * time.Minute))

	s.Equal(1, removed)
	code, err := s.store.TakeFlash(context.Background(), "sid-old")
	s.Require().NoError(err)
	s.Empty(code, "the flash goes with its session")
	code, err = s.store.TakeFlash(context.Background(), "sid-new")
	s.Require().NoError(err)
	s.Equal("invalid_grant", code)
}

func (s *SessionStoreSuite) TestRunCleanupStopsWithContext() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.store.RunCleanup(ctx, time.Millisecond) }()
	cancel()
	s.NoError(<-done)
}
