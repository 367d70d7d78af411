package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medcare.org/internal/audit"
	"medcare.org/internal/auth"
	"medcare.org/internal/rbac"
)

func (a *API) requirePermission(r *http.Request, perm rbac.Permission) error {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return auth.ErrUnauthorized
	}
	if !rbac.HasPermission(principal.Role, perm, nil) {
		return auth.ErrUnauthorized
	}
	return nil
}

func (a *API) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.requirePermission(r, rbac.AuditLogsRead); err != nil {
		writeError(w, r, http.StatusForbidden, codeUnauthorized, "insufficient permissions")
		return
	}

	q := audit.Query{
		Resource:   strings.TrimSpace(r.URL.Query().Get("resource")),
		ResourceID: strings.TrimSpace(r.URL.Query().Get("resourceId")),
		UserID:     strings.TrimSpace(r.URL.Query().Get("userId")),
	}
	for _, raw := range r.URL.Query()["action"] {
		q.Actions = append(q.Actions, audit.Action(strings.ToUpper(strings.TrimSpace(raw))))
	}

	var err error
	if q.StartDate, err = parseTimeParam(r, "startDate"); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if q.EndDate, err = parseTimeParam(r, "endDate"); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if q.Limit, err = parsePositiveInt(r.URL.Query().Get("limit"), 0, 1, 1000); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if q.Offset, err = parsePositiveInt(r.URL.Query().Get("offset"), 0, 0, 1<<30); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	entries, err := a.auditor.GetAuditLogs(r.Context(), q)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := a.requirePermission(r, rbac.AuditLogsRead); err != nil {
		writeError(w, r, http.StatusForbidden, codeUnauthorized, "insufficient permissions")
		return
	}

	end, err := parseTimeParam(r, "endDate")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	start, err := parseTimeParam(r, "startDate")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -30)
	}

	summary, err := a.auditor.GetAuditSummary(r.Context(), start, end, strings.TrimSpace(r.URL.Query().Get("resource")))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleAuditCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.requirePermission(r, rbac.SystemAdmin); err != nil {
		writeError(w, r, http.StatusForbidden, codeUnauthorized, "insufficient permissions")
		return
	}

	retentionDays := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("retentionDays")); raw != "" {
		var err error
		if retentionDays, err = parsePositiveInt(raw, 0, 1, 1<<20); err != nil {
			writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
	}

	deleted, err := a.auditor.CleanupOldLogs(r.Context(), retentionDays)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be RFC3339")
	}
	return ts, nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("value must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("value out of range")
	}
	return val, nil
}
