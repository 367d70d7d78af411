package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"medcare.org/internal/audit"
	"medcare.org/internal/auth"
	"medcare.org/internal/config"
	"medcare.org/internal/obs"
	"medcare.org/internal/otp"
)

// degradedThreshold marks a datastore ping as degraded without failing the
// readiness probe.
const degradedThreshold = 500 * time.Millisecond

// ReadyProbe pings the backing datastore for the health endpoints.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) (time.Duration, error) {
	if rp.DB == nil {
		return 0, nil
	}
	start := time.Now()
	err := rp.DB.PingContext(ctx)
	return time.Since(start), err
}

// API is the HTTP layer over the auth, OTP and audit services.
type API struct {
	mux        *http.ServeMux
	cfg        config.Config
	auth       *auth.Service
	otp        *otp.Service
	auditor    *audit.Logger
	oauth      *auth.OAuthManager
	readyProbe ReadyProbe
	version    string
}

func New(cfg config.Config, authSvc *auth.Service, otpSvc *otp.Service, auditor *audit.Logger, oauth *auth.OAuthManager, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		cfg:        cfg,
		auth:       authSvc,
		otp:        otpSvc,
		auditor:    auditor,
		oauth:      oauth,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/api/health", a.handleHealth)
	a.mux.HandleFunc("/api/db-health", a.handleDBHealth)

	a.mux.HandleFunc("/api/register", a.handleRegister)
	a.mux.HandleFunc("/api/otp", a.handleOTP)
	a.mux.HandleFunc("/api/password-reset", a.handlePasswordReset)

	a.mux.HandleFunc("/api/auth/sign-in", a.handleSignIn)
	a.mux.HandleFunc("/api/auth/sign-out", a.handleSignOut)
	a.mux.HandleFunc("/api/auth/session", a.handleSession)
	a.mux.HandleFunc("/api/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/api/auth/oauth/google", a.handleOAuthStart)
	a.mux.HandleFunc("/api/auth/oauth/google/callback", a.handleOAuthCallback)

	a.mux.HandleFunc("/api/audit", a.handleAuditQuery)
	a.mux.HandleFunc("/api/audit/summary", a.handleAuditSummary)
	a.mux.HandleFunc("/api/audit/cleanup", a.handleAuditCleanup)

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.Gatekeeper(h)
	h = obs.Instrument(h)
	h = RateLimit(h, 20, 10)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// --- health ---

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "medcare-api",
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleDBHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	latency, err := a.readyProbe.Check(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "down",
			"error":  "database unreachable",
		})
		return
	}
	status := "healthy"
	if latency >= degradedThreshold {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"latency_ms": latency.Milliseconds(),
	})
}

// --- helpers ---

// Stable client-facing error codes. Internal detail never crosses this
// boundary.
const (
	codeValidation    = "VALIDATION"
	codeNotFound      = "NOT_FOUND"
	codeConflict      = "CONFLICT"
	codeRateLimited   = "RATE_LIMITED"
	codeUnauthorized  = "UNAUTHORIZED"
	codeDatabaseError = "DATABASE_ERROR"
	codeUnknown       = "UNKNOWN"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  code,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

// handleServiceError maps domain sentinels onto the wire taxonomy.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, codeConflict, "resource already exists")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid or expired token")
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrAccountInactive):
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "invalid credentials")
	default:
		obs.Error("request_failed", map[string]any{
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, codeUnknown, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
}

// auditContext captures caller attribution for audit entries.
func (a *API) auditContext(r *http.Request) audit.Context {
	actx := audit.Context{
		IPAddress: clientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
	}
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		actx.UserID = p.UserID
		actx.UserRole = string(p.Role)
		actx.SessionID = p.SessionID
	}
	return actx
}
