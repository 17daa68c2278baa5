package service

import (
	"context"

	"cloudgate/internal/audit"
	"cloudgate/pkg/requestcontext"
)

// Logout clears the principal and any pending transaction. Calling it on a
// session that holds neither is a no-op.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Principal == nil && session.PendingTransaction == nil {
		return nil
	}

	subject := ""
	if session.Principal != nil {
		subject = session.Principal.SubjectID()
	}
	session.Clear(requestcontext.Now(ctx))
	if err := s.saveSession(ctx, session); err != nil {
		return err
	}

	s.logAudit(ctx, audit.Event{
		Action:  audit.ActionLoggedOut,
		Subject: subject,
		Session: sessionRef(sessionID),
	})
	return nil
}
