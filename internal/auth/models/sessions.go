package models

import "time"

// Session is the per-user-agent state owned by the session store.
// Only the auth service mutates it.
type Session struct {
	ID                 string                    `json:"id"`
	Principal          *Principal                `json:"principal,omitempty"`
	PendingTransaction *AuthorizationTransaction `json:"pending_transaction,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

// NewSession returns an empty session for id.
func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// IsAuthenticated reports whether a principal is bound to the session.
func (s *Session) IsAuthenticated() bool {
	return s.Principal != nil
}

// BeginTransaction replaces any pending transaction with tx.
func (s *Session) BeginTransaction(tx *AuthorizationTransaction, now time.Time) {
	s.PendingTransaction = tx
	s.UpdatedAt = now
}

// Authenticate publishes p and clears the pending transaction in one step.
func (s *Session) Authenticate(p *Principal, now time.Time) {
	s.Principal = p
	s.PendingTransaction = nil
	s.UpdatedAt = now
}

// ClearTransaction drops the pending transaction, if any.
func (s *Session) ClearTransaction(now time.Time) {
	s.PendingTransaction = nil
	s.UpdatedAt = now
}

// Clear removes the principal and any pending transaction.
func (s *Session) Clear(now time.Time) {
	s.Principal = nil
	s.PendingTransaction = nil
	s.UpdatedAt = now
}
