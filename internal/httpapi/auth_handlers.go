package httpapi

import (
	"net/http"
	"strings"
	"time"

	"medcare.org/internal/auth"
	"medcare.org/internal/otp"
)

type signInRequest struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Phone    string `json:"phone,omitempty"`
	OTP      string `json:"otp,omitempty"`
}

type signInResponse struct {
	User      *auth.User `json:"user"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	actx := a.auditContext(r)

	var (
		pair auth.SessionTokens
		user *auth.User
		err  error
	)
	switch {
	case req.Phone != "" && req.OTP != "":
		res, verr := a.otp.Verify(r.Context(), req.Phone, req.OTP, otp.PurposeLogin)
		if verr != nil {
			handleServiceError(w, r, verr)
			return
		}
		if res.Outcome != otp.VerifyOK {
			a.writeOTPOutcome(w, r, res)
			return
		}
		pair, user, err = a.auth.PhoneSignIn(r.Context(), req.Phone, actx)
	case req.Email != "" && req.Password != "":
		pair, user, err = a.auth.PasswordSignIn(r.Context(), req.Email, req.Password, actx)
	default:
		writeError(w, r, http.StatusBadRequest, codeValidation, "email/password or phone/otp is required")
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	a.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, signInResponse{User: user, ExpiresAt: pair.AccessExpiresAt})
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// a stale or missing token still clears the cookies
	if token := sessionToken(r); token != "" {
		_ = a.auth.SignOut(r.Context(), token, a.auditContext(r))
	}
	a.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "signed out"})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	token := sessionToken(r)
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return
	}
	sess, err := a.auth.Session(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	token := ""
	if c, err := r.Cookie(refreshCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := decodeJSON(w, r, &req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "refresh token is required")
		return
	}

	pair, user, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		// any refresh failure (expired, replayed, revoked) ends the session
		a.clearSessionCookies(w)
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "invalid credentials")
		return
	}
	a.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, signInResponse{User: user, ExpiresAt: pair.AccessExpiresAt})
}

// --- OAuth ---

const oauthStateCookie = "medcare_oauth_state"

func (a *API) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.oauth == nil {
		writeError(w, r, http.StatusNotFound, codeNotFound, "oauth sign-in is not configured")
		return
	}

	state, err := a.oauth.StateToken()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeUnknown, "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/oauth",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.cfg.IsProd(),
	})
	http.Redirect(w, r, a.oauth.AuthURL(state), http.StatusFound)
}

func (a *API) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.oauth == nil {
		writeError(w, r, http.StatusNotFound, codeNotFound, "oauth sign-in is not configured")
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		http.Redirect(w, r, authErrorPath, http.StatusFound)
		return
	}
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		http.Redirect(w, r, authErrorPath, http.StatusFound)
		return
	}

	providerToken, err := a.oauth.Exchange(r.Context(), code)
	if err != nil {
		http.Redirect(w, r, authErrorPath, http.StatusFound)
		return
	}
	email, err := a.oauth.FetchEmail(r.Context(), providerToken)
	if err != nil {
		http.Redirect(w, r, authErrorPath, http.StatusFound)
		return
	}

	pair, _, err := a.auth.OAuthSignIn(r.Context(), email, a.auditContext(r))
	if err != nil {
		http.Redirect(w, r, unauthorizedPath, http.StatusFound)
		return
	}
	a.setSessionCookies(w, pair)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// --- cookies ---

func (a *API) setSessionCookies(w http.ResponseWriter, pair auth.SessionTokens) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.cfg.IsProd(),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    pair.RefreshToken,
		Path:     "/api/auth",
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.cfg.IsProd(),
	})
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.cfg.IsProd(),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.cfg.IsProd(),
	})
}
