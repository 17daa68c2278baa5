package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudgate/internal/auth/models"
	authservice "cloudgate/internal/auth/service"
	"cloudgate/internal/platform/metrics"
	"cloudgate/pkg/platform/middleware/metadata"
	"cloudgate/pkg/platform/secrets"
	"cloudgate/pkg/requestcontext"
	"cloudgate/pkg/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDIsPropagated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-Id"))
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	h := Recovery(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")
}

func TestLanguageDefaultsToEnglish(t *testing.T) {
	var got string
	h := Language(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Language(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "en", got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?language=es", nil))
	assert.Equal(t, "es", got)
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rr.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestSessionCookie(t *testing.T) {
	var seen string
	h := SessionCookie(SessionCookieConfig{MaxAge: time.Hour}, discardLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestcontext.SessionID(r.Context())
		}))

	t.Run("issues a new id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, DefaultSessionCookie, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, 3600, cookies[0].MaxAge)
		assert.True(t, secrets.Valid(seen))
		assert.Equal(t, seen, cookies[0].Value)
	})

	t.Run("keeps a well-formed id", func(t *testing.T) {
		existing, err := secrets.Generate()
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: existing})

		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, existing, seen)
	})

	t.Run("replaces a malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "../../admin"})

		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEqual(t, "../../admin", seen)
		assert.True(t, secrets.Valid(seen))
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("per client burst", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		l := NewRateLimiter(1, 2, discardLogger(), WithRateLimitClock(func() time.Time { return now }))

		assert.True(t, l.Allow("10.0.0.1"))
		assert.True(t, l.Allow("10.0.0.1"))
		assert.False(t, l.Allow("10.0.0.1"))
		assert.True(t, l.Allow("10.0.0.2"), "other clients have their own bucket")

		now = now.Add(time.Second)
		assert.True(t, l.Allow("10.0.0.1"), "tokens refill over time")
	})

	t.Run("idle buckets are swept", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		l := NewRateLimiter(1, 1, discardLogger(), WithRateLimitClock(func() time.Time { return now }))
		l.Allow("10.0.0.1")
		l.Allow("10.0.0.2")

		now = now.Add(idleBucketTTL + time.Second)
		l.Allow("10.0.0.3")

		l.mu.Lock()
		defer l.mu.Unlock()
		assert.Len(t, l.buckets, 1)
	})

	t.Run("middleware writes 429 and counts", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		l := NewRateLimiter(0.001, 1, discardLogger(), WithRateLimitMetrics(m))
		h := l.Middleware("/rop/login/submit")(okHandler())

		req := httptest.NewRequest(http.MethodPost, "/rop/login/submit", nil)
		req = testutil.WithClientIP(req, "192.0.2.1")

		first := httptest.NewRecorder()
		h.ServeHTTP(first, req)
		assert.Equal(t, http.StatusOK, first.Code)

		second := httptest.NewRecorder()
		h.ServeHTTP(second, req)
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
		assert.NotEmpty(t, second.Header().Get("Retry-After"))
		assert.Equal(t, 1.0, promtestutil.ToFloat64(m.RateLimited.WithLabelValues("/rop/login/submit")))
	})

	t.Run("rotating forwarded headers share the peer bucket", func(t *testing.T) {
		l := NewRateLimiter(0.001, 1, discardLogger())
		h := metadata.ClientMetadata(nil)(l.Middleware("/rop/login/submit")(okHandler()))

		allowed := 0
		for i := range 50 {
			req := httptest.NewRequest(http.MethodPost, "/rop/login/submit", nil)
			req.RemoteAddr = "203.0.113.7:5555"
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code == http.StatusOK {
				allowed++
			} else {
				assert.Equal(t, http.StatusTooManyRequests, rr.Code)
			}
		}
		assert.Equal(t, 1, allowed)
	})

	t.Run("trusted proxy forwards distinct clients", func(t *testing.T) {
		trusted, err := metadata.ParseTrustedProxies([]string{"10.0.0.1"})
		require.NoError(t, err)
		l := NewRateLimiter(1, 1, discardLogger())
		h := metadata.ClientMetadata(trusted)(l.Middleware("/rop/login/submit")(okHandler()))

		for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
			req := httptest.NewRequest(http.MethodPost, "/rop/login/submit", nil)
			req.RemoteAddr = "10.0.0.1:443"
			req.Header.Set("X-Forwarded-For", client)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusOK, rr.Code, client)
		}
	})

	t.Run("disabled passes through", func(t *testing.T) {
		l := NewRateLimiter(0.001, 1, discardLogger(), WithRateLimitDisabled(true))
		h := l.Middleware("/x")(okHandler())
		for range 3 {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, http.StatusOK, rr.Code)
		}
	})
}

type stubGate struct {
	principal   *models.Principal
	err         error
	beginCalled string
	beginLang   string
	sessionID   string
}

func (g *stubGate) CurrentPrincipal(_ context.Context, sessionID string) (*models.Principal, error) {
	g.sessionID = sessionID
	return g.principal, g.err
}

func (g *stubGate) BeginAuthorization(_ context.Context, _, originalURL, language string) (*authservice.AuthorizationRedirect, error) {
	g.beginCalled = originalURL
	g.beginLang = language
	return &authservice.AuthorizationRedirect{URL: "https://idp.example.com/authorization?state=tx"}, nil
}

func TestRequireAuthenticated(t *testing.T) {
	t.Run("redirects to the IdP and remembers the target", func(t *testing.T) {
		gate := &stubGate{}
		h := RequireAuthenticated(gate, discardLogger())(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/protected?x=1", nil)
		req = testutil.WithLanguage(testutil.WithSessionID(req, "sid-1"), "es")
		rr := testutil.DoRequest(h, req)

		testutil.AssertRedirect(t, rr, "https://idp.example.com/authorization?state=tx")
		assert.Equal(t, "/protected?x=1", gate.beginCalled)
		assert.Equal(t, "es", gate.beginLang)
		assert.Equal(t, "sid-1", gate.sessionID)
	})

	t.Run("passes the principal through", func(t *testing.T) {
		p := models.NewPrincipal("user-1", nil, time.Now(), models.TokenSet{})
		var got *models.Principal
		h := RequireAuthenticated(&stubGate{principal: p}, discardLogger())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetPrincipal(r.Context())
			}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/protected", nil))
		assert.Same(t, p, got)
	})

	t.Run("store failure is a 500", func(t *testing.T) {
		h := RequireAuthenticated(&stubGate{err: errors.New("redis down")}, discardLogger())(okHandler())

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/protected", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "redis")
	})
}
