package auth

import "time"

// Role determines the capability set a user operates with.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleDoctor     Role = "DOCTOR"
	RoleNurse      Role = "NURSE"
	RoleStaff      Role = "STAFF"
	RolePatient    Role = "PATIENT"
	RolePharmacist Role = "PHARMACIST"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleDoctor, RoleNurse, RoleStaff, RolePatient, RolePharmacist}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// User is the identity record. PasswordHash is empty for OAuth-only accounts.
// IsActive gates login; IsVerified gates protected-route access. UpdatedAt
// doubles as a session-invalidation watermark: bumping it on password reset
// outdates every session issued before the bump.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	IsVerified   bool      `json:"is_verified"`
	LastLoginAt  time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile holds the non-credential attributes captured at registration.
type Profile struct {
	UserID           string `json:"user_id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	DateOfBirth      string `json:"date_of_birth,omitempty"`
	Gender           string `json:"gender,omitempty"`
	Address          string `json:"address,omitempty"`
	EmergencyContact string `json:"emergency_contact,omitempty"`
	Specialization   string `json:"specialization,omitempty"`
	LicenseNumber    string `json:"license_number,omitempty"`
	DepartmentID     int    `json:"department_id,omitempty"`
	HospitalID       int    `json:"hospital_id,omitempty"`
}

// VerificationTokenType distinguishes persisted single-use tokens.
type VerificationTokenType string

const (
	TokenTypePasswordReset     VerificationTokenType = "PASSWORD_RESET"
	TokenTypeEmailVerification VerificationTokenType = "EMAIL_VERIFICATION"
)

// VerificationToken pairs an opaque signed token with a persisted row. The row
// provides revocability: a cryptographically valid token whose row is gone has
// already been consumed.
type VerificationToken struct {
	ID         string
	Identifier string
	Token      string
	Type       VerificationTokenType
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// RefreshSession is the persisted half of a refresh token. The JWT half
// carries only (userID, sessionID); this row binds the exact token via its
// hash and allows revocation and rotation.
type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}
