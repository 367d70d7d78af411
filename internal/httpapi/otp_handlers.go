package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"medcare.org/internal/auth"
	"medcare.org/internal/otp"
)

type otpSendRequest struct {
	Phone   string `json:"phone"`
	Purpose string `json:"purpose"`
}

type otpVerifyRequest struct {
	Phone   string `json:"phone"`
	OTP     string `json:"otp"`
	Purpose string `json:"purpose"`
}

func (a *API) handleOTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleOTPSend(w, r)
	case http.MethodPut:
		a.handleOTPVerify(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodPut)
	}
}

func (a *API) handleOTPSend(w http.ResponseWriter, r *http.Request) {
	var req otpSendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	purpose, ok := parsePurpose(req.Purpose)
	if !ok {
		writeError(w, r, http.StatusBadRequest, codeValidation, "purpose must be login, verification or 2fa")
		return
	}
	if !otp.ValidPhone(req.Phone) {
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid phone number")
		return
	}

	// login codes only go to registered, active phones; the response does not
	// distinguish missing from deactivated accounts
	if purpose == otp.PurposeLogin {
		user, err := a.auth.UserByPhone(r.Context(), req.Phone)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				writeError(w, r, http.StatusNotFound, codeNotFound, "no account for this phone number")
				return
			}
			handleServiceError(w, r, err)
			return
		}
		if !user.IsActive {
			writeError(w, r, http.StatusNotFound, codeNotFound, "no account for this phone number")
			return
		}
	}

	limited, err := a.otp.RateLimited(r.Context(), req.Phone)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if limited {
		w.Header().Set("Retry-After", "3600")
		writeError(w, r, http.StatusTooManyRequests, codeRateLimited, "too many codes requested, try again later")
		return
	}

	ttl, err := a.otp.Send(r.Context(), req.Phone, purpose)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeUnknown, "failed to send verification code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "verification code sent",
		"expiresIn": int(ttl.Seconds()),
	})
}

func (a *API) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	purpose, ok := parsePurpose(req.Purpose)
	if !ok {
		writeError(w, r, http.StatusBadRequest, codeValidation, "purpose must be login, verification or 2fa")
		return
	}
	if strings.TrimSpace(req.OTP) == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "otp is required")
		return
	}

	res, err := a.otp.Verify(r.Context(), req.Phone, req.OTP, purpose)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if res.Outcome != otp.VerifyOK {
		a.writeOTPOutcome(w, r, res)
		return
	}

	// a login code doubles as the credential: establish the session here
	if purpose == otp.PurposeLogin {
		pair, user, err := a.auth.PhoneSignIn(r.Context(), req.Phone, a.auditContext(r))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.setSessionCookies(w, pair)
		writeJSON(w, http.StatusOK, signInResponse{User: user, ExpiresAt: pair.AccessExpiresAt})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "code verified"})
}

// writeOTPOutcome maps a non-OK verification outcome onto the wire taxonomy.
func (a *API) writeOTPOutcome(w http.ResponseWriter, r *http.Request, res otp.VerifyResult) {
	switch res.Outcome {
	case otp.VerifyNotFound:
		writeError(w, r, http.StatusNotFound, codeNotFound, "no code pending for this phone number")
	case otp.VerifyExpired:
		writeError(w, r, http.StatusBadRequest, codeValidation, "code has expired, request a new one")
	case otp.VerifyRateLimited:
		writeError(w, r, http.StatusTooManyRequests, codeRateLimited, "too many attempts, request a new code")
	default:
		payload := map[string]any{
			"error":             "invalid code",
			"code":              codeValidation,
			"attemptsRemaining": res.AttemptsRemaining,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusBadRequest, payload)
	}
}

func parsePurpose(s string) (otp.Purpose, bool) {
	p := otp.Purpose(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		p = otp.PurposeLogin
	}
	return p, p.Valid()
}
