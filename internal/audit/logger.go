package audit

import (
	"context"
	"time"

	"medcare.org/internal/obs"
)

const defaultRetentionDays = 2555 // 7 years, healthcare retention norm

// Logger writes entries through a Store and mirrors them to the application
// log for real-time monitoring.
type Logger struct {
	store Store
	now   func() time.Time
}

func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (l *Logger) WithClock(fn func() time.Time) *Logger {
	if fn != nil {
		l.now = fn
	}
	return l
}

// Log appends the entry. Storage failures are logged and swallowed so the
// originating operation never fails because auditing failed.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	if err := l.store.Append(ctx, &e); err != nil {
		obs.ObserveAuditFailure()
		obs.Error("audit write failed", map[string]any{
			"action":   string(e.Action),
			"resource": e.Resource,
			"error":    err.Error(),
		})
		return
	}
	fields := map[string]any{
		"type":     "audit",
		"action":   string(e.Action),
		"resource": e.Resource,
	}
	if e.ResourceID != "" {
		fields["resource_id"] = e.ResourceID
	}
	if e.UserID != "" {
		fields["user_id"] = e.UserID
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		fields["request_id"] = rid
	}
	obs.Info("audit event", fields)
}

// LogAuth records LOGIN, LOGOUT and PASSWORD_CHANGE events.
func (l *Logger) LogAuth(ctx context.Context, action Action, userID string, actx Context) {
	l.Log(ctx, Entry{
		UserID:     userID,
		Action:     action,
		Resource:   "authentication",
		ResourceID: userID,
		IPAddress:  actx.IPAddress,
		UserAgent:  actx.UserAgent,
	})
}

// LogPatientAccess records patient data reads and writes.
func (l *Logger) LogPatientAccess(ctx context.Context, action Action, patientID string, actx Context, oldValues, newValues map[string]any) {
	l.Log(ctx, Entry{
		UserID:     actx.UserID,
		Action:     action,
		Resource:   "patients",
		ResourceID: patientID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  actx.IPAddress,
		UserAgent:  actx.UserAgent,
	})
}

// LogMedicalRecordAccess records medical record reads and writes.
func (l *Logger) LogMedicalRecordAccess(ctx context.Context, action Action, recordID string, actx Context, oldValues, newValues map[string]any) {
	l.Log(ctx, Entry{
		UserID:     actx.UserID,
		Action:     action,
		Resource:   "medical_records",
		ResourceID: recordID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  actx.IPAddress,
		UserAgent:  actx.UserAgent,
	})
}

// LogPermissionChange records permission grants and revocations.
func (l *Logger) LogPermissionChange(ctx context.Context, action Action, targetUserID, permission string, actx Context) {
	l.Log(ctx, Entry{
		UserID:     actx.UserID,
		Action:     action,
		Resource:   "permissions",
		ResourceID: targetUserID,
		NewValues:  map[string]any{"permission": permission},
		IPAddress:  actx.IPAddress,
		UserAgent:  actx.UserAgent,
	})
}

// LogAccountSecurity records account lock and unlock events.
func (l *Logger) LogAccountSecurity(ctx context.Context, action Action, targetUserID string, actx Context, reason string) {
	var values map[string]any
	if reason != "" {
		values = map[string]any{"reason": reason}
	}
	l.Log(ctx, Entry{
		UserID:     actx.UserID,
		Action:     action,
		Resource:   "accounts",
		ResourceID: targetUserID,
		NewValues:  values,
		IPAddress:  actx.IPAddress,
		UserAgent:  actx.UserAgent,
	})
}

// LogDataExport records bulk exports for compliance.
func (l *Logger) LogDataExport(ctx context.Context, resourceType string, recordCount int, actx Context, format string) {
	l.Log(ctx, Entry{
		UserID:   actx.UserID,
		Action:   ActionRead,
		Resource: "data_export",
		NewValues: map[string]any{
			"resource_type": resourceType,
			"record_count":  recordCount,
			"export_format": format,
		},
		IPAddress: actx.IPAddress,
		UserAgent: actx.UserAgent,
	})
}

// GetAuditLogs returns entries matching the query, newest first.
func (l *Logger) GetAuditLogs(ctx context.Context, q Query) ([]Entry, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 100
	}
	return l.store.Query(ctx, q)
}

// GetAuditSummary aggregates counts by (action, resource) and the ten most
// active users in the range.
func (l *Logger) GetAuditSummary(ctx context.Context, start, end time.Time, resource string) (Summary, error) {
	return l.store.Summarize(ctx, start, end, resource)
}

// CleanupOldLogs deletes entries older than the retention window and returns
// how many were removed.
func (l *Logger) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	cutoff := l.now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := l.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	obs.Info("cleaned up old audit logs", map[string]any{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	})
	return deleted, nil
}
