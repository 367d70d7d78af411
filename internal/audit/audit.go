// Package audit keeps the append-only record of security-relevant events
// required for compliance reporting. Writes are best-effort: a failed audit
// write is logged and counted but never fails the originating operation.
//
// TODO: replace fire-and-forget writes with a durable outbox; the current
// guarantee is a known compliance gap.
package audit

import (
	"context"
	"strings"
	"time"
)

// Action enumerates recordable events.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"

	ActionLogin          Action = "LOGIN"
	ActionLogout         Action = "LOGOUT"
	ActionPasswordChange Action = "PASSWORD_CHANGE"

	ActionPermissionGrant  Action = "PERMISSION_GRANT"
	ActionPermissionRevoke Action = "PERMISSION_REVOKE"

	ActionAccountLock   Action = "ACCOUNT_LOCK"
	ActionAccountUnlock Action = "ACCOUNT_UNLOCK"
)

// Entry is one append-only record.
type Entry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id,omitempty"`
	Action     Action         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Context carries request attribution for an audit write.
type Context struct {
	UserID    string
	UserRole  string
	IPAddress string
	UserAgent string
	SessionID string
}

// Query filters the audit log. Zero-valued fields are ignored.
type Query struct {
	Resource   string
	ResourceID string
	UserID     string
	Actions    []Action
	StartDate  time.Time
	EndDate    time.Time
	Limit      int
	Offset     int
}

// SummaryRow is one (action, resource) aggregate.
type SummaryRow struct {
	Action   Action `json:"action"`
	Resource string `json:"resource"`
	Count    int64  `json:"count"`
}

// ActorRow is one entry of the top-active-users aggregate.
type ActorRow struct {
	UserID string `json:"user_id"`
	Count  int64  `json:"count"`
}

// Summary is the compliance-reporting aggregate for a date range.
type Summary struct {
	ActionSummary  []SummaryRow `json:"action_summary"`
	TopActiveUsers []ActorRow   `json:"top_active_users"`
	TotalEvents    int64        `json:"total_events"`
}

// Store persists entries durably.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	Query(ctx context.Context, q Query) ([]Entry, error)
	Summarize(ctx context.Context, start, end time.Time, resource string) (Summary, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// attribution.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
