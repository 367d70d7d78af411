package httpapi

import (
	"net/http"
	"strings"

	"medcare.org/internal/auth"
)

type registerRequest struct {
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Phone    string       `json:"phone,omitempty"`
	Role     string       `json:"role"`
	Profile  auth.Profile `json:"profile"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleRegisterCreate(w, r)
	case http.MethodPut:
		a.handleVerifyEmail(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodPut)
	}
}

func (a *API) handleRegisterCreate(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	user, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     auth.Role(strings.ToUpper(strings.TrimSpace(req.Role))),
		Profile:  req.Profile,
	}, a.auditContext(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"userId":               user.ID,
		"verificationRequired": true,
	})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "token is required")
		return
	}
	if err := a.auth.VerifyEmail(r.Context(), token, a.auditContext(r)); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "email verified"})
}
