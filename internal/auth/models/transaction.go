package models

import "time"

// GrantType names an OAuth2 grant accepted by the IdP token endpoint.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantPassword          GrantType = "password"
	GrantJWTBearer         GrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	GrantClientCredentials GrantType = "client_credentials"
)

func (g GrantType) String() string {
	return string(g)
}

// AuthorizationTransaction links a redirect to the IdP with its callback.
// ID doubles as the OAuth2 state parameter.
type AuthorizationTransaction struct {
	ID               string    `json:"id"`
	OriginalURL      string    `json:"original_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	PendingGrantType GrantType `json:"pending_grant_type"`
}

// Expired reports whether the transaction is older than ttl at now.
// A zero ttl never expires.
func (t *AuthorizationTransaction) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(t.CreatedAt) > ttl
}
