package httpapi

import (
	"net/http"
	"strings"
)

// resetRequestedMessage is the uniform response body regardless of whether
// the email is registered.
const resetRequestedMessage = "if an account exists for this email, a reset link has been sent"

func (a *API) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleResetRequest(w, r)
	case http.MethodPut:
		a.handleResetComplete(w, r)
	case http.MethodGet:
		a.handleResetProbe(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodPut, http.MethodGet)
	}
}

func (a *API) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "email is required")
		return
	}

	a.auth.RequestPasswordReset(r.Context(), req.Email, a.auditContext(r))
	writeJSON(w, http.StatusOK, map[string]any{"message": resetRequestedMessage})
}

func (a *API) handleResetComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "token and newPassword are required")
		return
	}

	if err := a.auth.CompletePasswordReset(r.Context(), req.Token, req.NewPassword, a.auditContext(r)); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "password updated"})
}

// handleResetProbe lets the reset form check a link before asking for a new
// password.
func (a *API) handleResetProbe(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "token is required")
		return
	}
	email, err := a.auth.PeekPasswordReset(r.Context(), token)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid or expired token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"email": email})
}
