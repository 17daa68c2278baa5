package token

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "client-123"
	testSecret   = "s3cret"
	testTenantID = "tenant-abc"
	testKeyID    = "key-1"
)

// fakeIdP serves /token and /publickeys. tokenHandler can be swapped per test.
type fakeIdP struct {
	server       *httptest.Server
	key          *rsa.PrivateKey
	tokenHandler http.HandlerFunc
	keyFetches   atomic.Int32
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIdP{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, func(w http.ResponseWriter, r *http.Request) {
		f.tokenHandler(w, r)
	})
	mux.HandleFunc(PublicKeysPath, func(w http.ResponseWriter, r *http.Request) {
		f.keyFetches.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"keys": []map[string]string{{
				"kid": testKeyID,
				"kty": "RSA",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIdP) URL() string { return f.server.URL }

func (f *fakeIdP) signIDToken(t *testing.T, sub string, overrides map[string]any) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":    f.server.URL,
		"aud":    []string{testClientID},
		"sub":    sub,
		"tenant": testTenantID,
		"iat":    now.Unix(),
		"exp":    now.Add(time.Hour).Unix(),
		"email":  "ada@example.com",
	}
	for k, v := range overrides {
		claims[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
