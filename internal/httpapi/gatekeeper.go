package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"medcare.org/internal/auth"
	"medcare.org/internal/obs"
	"medcare.org/internal/rbac"
)

const (
	sessionCookie = "medcare_session"
	refreshCookie = "medcare_refresh"

	authHeader = "Authorization"
	bearer     = "Bearer "

	signInPath       = "/sign-in"
	verifyPromptPath = "/verify-email"
	unauthorizedPath = "/unauthorized"
	authErrorPath    = "/auth/error"
)

var publicPaths = []string{
	"/",
	signInPath,
	"/sign-up",
	verifyPromptPath,
	unauthorizedPath,
	authErrorPath,
	"/api/health",
	"/api/db-health",
	"/api/register",
	"/api/otp",
	"/api/password-reset",
	"/api/auth/sign-in",
	"/api/auth/refresh",
	"/api/auth/oauth/google",
	"/api/auth/oauth/google/callback",
	"/metrics",
	"/favicon.ico",
}

var publicPrefixes = []string{
	"/assets/",
	"/static/",
}

// routePermissions maps page-route prefixes onto the permission required to
// enter them. Longest prefix wins.
var routePermissions = []struct {
	prefix string
	perm   rbac.Permission
}{
	{"/admin", rbac.SystemAdmin},
	{"/patients", rbac.PatientsRead},
	{"/medical-records", rbac.MedicalRecordsRead},
	{"/appointments", rbac.AppointmentsRead},
	{"/staff", rbac.StaffRead},
	{"/departments", rbac.DepartmentsRead},
	{"/pharmacy", rbac.PharmacyRead},
	{"/billing", rbac.BillingRead},
	{"/reports", rbac.ReportsRead},
	{"/audit", rbac.AuditLogsRead},
	{"/dashboard", rbac.SystemRead},
}

// Gatekeeper resolves the caller's session on every non-public request,
// enforces route-level permissions and forwards identity headers downstream.
// Failures on page routes redirect; failures on API routes answer JSON.
func (a *API) Gatekeeper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				obs.Error("gatekeeper_panic", map[string]any{
					"path":       r.URL.Path,
					"request_id": RequestIDFromContext(r.Context()),
					"panic":      rec,
				})
				// never leak a 500 out of the auth pipeline
				if isAPIPath(r.URL.Path) {
					writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication error")
				} else {
					http.Redirect(w, r, authErrorPath, http.StatusFound)
				}
			}
		}()

		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := sessionToken(r)
		if token == "" {
			a.denyUnauthenticated(w, r)
			return
		}

		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			a.denyUnauthenticated(w, r)
			return
		}

		if !principal.IsVerified && !isVerificationPath(r.URL.Path) {
			if isAPIPath(r.URL.Path) {
				writeError(w, r, http.StatusForbidden, codeUnauthorized, "email verification required")
			} else {
				http.Redirect(w, r, verifyPromptPath, http.StatusFound)
			}
			return
		}

		if perm, ok := requiredPermission(r.URL.Path); ok {
			if !rbac.HasPermission(principal.Role, perm, nil) {
				if isAPIPath(r.URL.Path) {
					writeError(w, r, http.StatusForbidden, codeUnauthorized, "insufficient permissions")
				} else {
					http.Redirect(w, r, unauthorizedPath, http.StatusFound)
				}
				return
			}
		}

		// identity headers are the only channel downstream handlers learn
		// the caller from without re-verifying the token
		r.Header.Set("X-User-Id", principal.UserID)
		r.Header.Set("X-User-Role", string(principal.Role))
		r.Header.Set("X-User-Email", principal.Email)

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) denyUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if isAPIPath(r.URL.Path) {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "authentication required")
		return
	}
	target := signInPath + "?callbackUrl=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}

// sessionToken resolves the access token from the session cookie, falling
// back to a bearer Authorization header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

func requiredPermission(path string) (rbac.Permission, bool) {
	best := -1
	var perm rbac.Permission
	for _, rp := range routePermissions {
		if !strings.HasPrefix(path, rp.prefix) {
			continue
		}
		if len(path) > len(rp.prefix) && path[len(rp.prefix)] != '/' {
			continue
		}
		if len(rp.prefix) > best {
			best = len(rp.prefix)
			perm = rp.perm
		}
	}
	return perm, best >= 0
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

func isVerificationPath(path string) bool {
	return path == verifyPromptPath ||
		path == "/api/register" ||
		path == "/api/otp" ||
		path == "/api/auth/session" ||
		path == "/api/auth/sign-out"
}
