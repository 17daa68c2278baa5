package audit

import (
	"log/slog"
	"time"
)

// Actions recorded by the auth orchestrator.
const (
	ActionAuthenticated        = "user_authenticated"
	ActionLoggedOut            = "user_logged_out"
	ActionAuthenticationFailed = "authentication_failed"
)

// Event is one security-relevant action. Session holds a shortened session
// id, never the full value, and no event carries credentials or tokens.
type Event struct {
	Timestamp time.Time
	Action    string
	Flow      string
	Subject   string
	Session   string
	Reason    string
	RequestID string
	ClientIP  string
}

// LogValue renders the event as a slog group, omitting empty fields.
func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Time("timestamp", e.Timestamp),
		slog.String("action", e.Action),
	}
	for _, kv := range [][2]string{
		{"flow", e.Flow},
		{"subject", e.Subject},
		{"session", e.Session},
		{"reason", e.Reason},
		{"request_id", e.RequestID},
		{"client_ip", e.ClientIP},
	} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	return slog.GroupValue(attrs...)
}
