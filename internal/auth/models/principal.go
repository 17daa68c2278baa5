package models

import (
	"encoding/json"
	"maps"
	"time"
)

// TokenSet is what the IdP token endpoint returns.
type TokenSet struct {
	AccessToken   string    `json:"access_token"`
	IdentityToken string    `json:"id_token,omitempty"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	TokenType     string    `json:"token_type,omitempty"`
	Expiry        time.Time `json:"expiry,omitzero"`
}

// Principal is the authenticated identity bound to a session.
// Fields are unexported so a constructed principal cannot be changed;
// re-authentication replaces it wholesale.
type Principal struct {
	subjectID string
	claims    map[string]any
	issuedAt  time.Time
	tokens    TokenSet
}

// NewPrincipal builds a principal. claims is copied.
func NewPrincipal(subjectID string, claims map[string]any, issuedAt time.Time, tokens TokenSet) *Principal {
	return &Principal{
		subjectID: subjectID,
		claims:    maps.Clone(claims),
		issuedAt:  issuedAt,
		tokens:    tokens,
	}
}

func (p *Principal) SubjectID() string   { return p.subjectID }
func (p *Principal) IssuedAt() time.Time { return p.issuedAt }
func (p *Principal) Tokens() TokenSet    { return p.tokens }

// Claims returns a copy of the identity token claims.
func (p *Principal) Claims() map[string]any {
	return maps.Clone(p.claims)
}

// Claim returns a single string claim, or "".
func (p *Principal) Claim(name string) string {
	v, _ := p.claims[name].(string)
	return v
}

type principalJSON struct {
	SubjectID string         `json:"sub"`
	Claims    map[string]any `json:"claims,omitempty"`
	IssuedAt  time.Time      `json:"issued_at"`
	Tokens    TokenSet       `json:"tokens"`
}

// MarshalJSON lets session stores persist the principal.
func (p *Principal) MarshalJSON() ([]byte, error) {
	return json.Marshal(principalJSON{
		SubjectID: p.subjectID,
		Claims:    p.claims,
		IssuedAt:  p.issuedAt,
		Tokens:    p.tokens,
	})
}

// UnmarshalJSON restores a persisted principal.
func (p *Principal) UnmarshalJSON(data []byte) error {
	var raw principalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Principal{
		subjectID: raw.SubjectID,
		claims:    raw.Claims,
		issuedAt:  raw.IssuedAt,
		tokens:    raw.Tokens,
	}
	return nil
}
