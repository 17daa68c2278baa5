package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cloudgate/pkg/platform/sentinel"
)

// PublicKeysPath serves the IdP signing keys as a JWKS document.
const PublicKeysPath = "/publickeys"

// Claim names checked on identity tokens.
const (
	claimTenant  = "tenant"
	claimVersion = "ver"
)

// IdentityClaims is the verified content of an identity token.
type IdentityClaims struct {
	Subject  string
	IssuedAt time.Time
	Claims   map[string]any
}

// VerifierConfig names what a valid identity token must carry.
type VerifierConfig struct {
	OAuthServerURL string
	ClientID       string
	TenantID       string
	// Issuer defaults to OAuthServerURL.
	Issuer string
	// Version, when set, must match the ver claim if the token carries one.
	Version string
}

// Verifier checks identity token signatures against the IdP JWKS and
// validates issuer, audience and tenant. Keys are cached by kid and
// refetched on a miss, at most once per minRefresh.
type Verifier struct {
	cfg        VerifierConfig
	keysURL    string
	httpClient *http.Client
	minRefresh time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

// NewVerifier builds a verifier. hc may be nil.
func NewVerifier(cfg VerifierConfig, hc *http.Client) *Verifier {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Issuer == "" {
		cfg.Issuer = strings.TrimRight(cfg.OAuthServerURL, "/")
	}
	return &Verifier{
		cfg:        cfg,
		keysURL:    strings.TrimRight(cfg.OAuthServerURL, "/") + PublicKeysPath,
		httpClient: hc,
		minRefresh: 30 * time.Second,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// Verify parses and validates raw.
func (v *Verifier) Verify(ctx context.Context, raw string) (*IdentityClaims, error) {
	if raw == "" {
		return nil, errors.New("identity token missing from token response")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.publicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.cfg.ClientID),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("verify identity token: %w", err)
	}

	if v.cfg.TenantID != "" {
		if tenant, _ := claims[claimTenant].(string); tenant != v.cfg.TenantID {
			return nil, fmt.Errorf("verify identity token: tenant %q does not match", tenant)
		}
	}
	if v.cfg.Version != "" {
		if ver, ok := claims[claimVersion]; ok && fmt.Sprint(ver) != v.cfg.Version {
			return nil, fmt.Errorf("verify identity token: unsupported version %v", ver)
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("verify identity token: subject missing")
	}
	out := &IdentityClaims{Subject: sub, Claims: map[string]any(claims)}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	return out, nil
}

func (v *Verifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	if err := v.refresh(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	// Tokens without kid are accepted only when the IdP publishes a single key.
	if kid == "" && len(v.keys) == 1 {
		for _, only := range v.keys {
			return only, nil
		}
	}
	return nil, fmt.Errorf("public key %q: %w", kid, sentinel.ErrNotFound)
}

type jwks struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *Verifier) refresh(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.lastFetch.IsZero() && time.Since(v.lastFetch) < v.minRefresh {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.keysURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch public keys: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch public keys: status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var doc jwks
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode public keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	v.keys = keys
	v.lastFetch = time.Now()
	return nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
