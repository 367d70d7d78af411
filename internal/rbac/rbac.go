// Package rbac evaluates role-based permissions for hospital operations.
// The role catalog is a compile-time table; ownership rules for self-service
// roles are declarative predicates attached per (role, resource) pair.
package rbac

import (
	"fmt"

	"medcare.org/internal/auth"
)

// Permission is a (resource, action) capability.
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

func (p Permission) String() string { return p.Resource + ":" + p.Action }

// Permission catalog.
var (
	PatientsRead   = Permission{"patients", "read"}
	PatientsWrite  = Permission{"patients", "write"}
	PatientsDelete = Permission{"patients", "delete"}

	MedicalRecordsRead   = Permission{"medical_records", "read"}
	MedicalRecordsWrite  = Permission{"medical_records", "write"}
	MedicalRecordsDelete = Permission{"medical_records", "delete"}

	AppointmentsRead   = Permission{"appointments", "read"}
	AppointmentsWrite  = Permission{"appointments", "write"}
	AppointmentsDelete = Permission{"appointments", "delete"}

	StaffRead   = Permission{"staff", "read"}
	StaffWrite  = Permission{"staff", "write"}
	StaffDelete = Permission{"staff", "delete"}

	DepartmentsRead   = Permission{"departments", "read"}
	DepartmentsWrite  = Permission{"departments", "write"}
	DepartmentsDelete = Permission{"departments", "delete"}

	HospitalRead   = Permission{"hospital", "read"}
	HospitalWrite  = Permission{"hospital", "write"}
	HospitalDelete = Permission{"hospital", "delete"}

	PharmacyRead   = Permission{"pharmacy", "read"}
	PharmacyWrite  = Permission{"pharmacy", "write"}
	PharmacyDelete = Permission{"pharmacy", "delete"}

	BillingRead   = Permission{"billing", "read"}
	BillingWrite  = Permission{"billing", "write"}
	BillingDelete = Permission{"billing", "delete"}

	ReportsRead  = Permission{"reports", "read"}
	ReportsWrite = Permission{"reports", "write"}

	AuditLogsRead = Permission{"audit_logs", "read"}

	SystemRead  = Permission{"system", "read"}
	SystemAdmin = Permission{"system", "admin"}
)

// Catalog lists every permission; ADMIN holds all of them.
var Catalog = []Permission{
	PatientsRead, PatientsWrite, PatientsDelete,
	MedicalRecordsRead, MedicalRecordsWrite, MedicalRecordsDelete,
	AppointmentsRead, AppointmentsWrite, AppointmentsDelete,
	StaffRead, StaffWrite, StaffDelete,
	DepartmentsRead, DepartmentsWrite, DepartmentsDelete,
	HospitalRead, HospitalWrite, HospitalDelete,
	PharmacyRead, PharmacyWrite, PharmacyDelete,
	BillingRead, BillingWrite, BillingDelete,
	ReportsRead, ReportsWrite,
	AuditLogsRead,
	SystemRead, SystemAdmin,
}

// RolePermissions maps each role onto its curated capability subset.
var RolePermissions = map[auth.Role][]Permission{
	auth.RoleAdmin: Catalog,

	auth.RoleDoctor: {
		PatientsRead, PatientsWrite,
		MedicalRecordsRead, MedicalRecordsWrite,
		AppointmentsRead, AppointmentsWrite,
		DepartmentsRead, StaffRead, ReportsRead,
		SystemRead,
	},

	auth.RoleNurse: {
		PatientsRead, PatientsWrite,
		MedicalRecordsRead, MedicalRecordsWrite,
		AppointmentsRead, AppointmentsWrite,
		DepartmentsRead, StaffRead,
		SystemRead,
	},

	auth.RoleStaff: {
		PatientsRead,
		AppointmentsRead, AppointmentsWrite,
		DepartmentsRead,
		BillingRead, BillingWrite,
		SystemRead,
	},

	auth.RolePatient: {
		AppointmentsRead, AppointmentsWrite, // own appointments only
		MedicalRecordsRead,                  // own records only
		SystemRead,
	},

	auth.RolePharmacist: {
		PatientsRead, MedicalRecordsRead,
		PharmacyRead, PharmacyWrite,
		AppointmentsRead,
		SystemRead,
	},
}

// Context carries row-level attributes for ownership checks.
type Context struct {
	UserID          string
	ResourceOwnerID string
}

// Decision is the explained outcome of a permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// ownershipRule narrows a granted ability class to specific rows.
type ownershipRule func(ctx Context) Decision

func ownRecordsOnly(ctx Context) Decision {
	if ctx.UserID != "" && ctx.UserID == ctx.ResourceOwnerID {
		return allow("owner of the resource")
	}
	return deny("self-service role may only access own records")
}

// ownershipRules attaches row-level predicates per (role, resource). The role
// grants the ability class; the predicate narrows it.
var ownershipRules = map[auth.Role]map[string]ownershipRule{
	auth.RolePatient: {
		"medical_records": ownRecordsOnly,
		"appointments":    ownRecordsOnly,
	},
}

// Authorize evaluates role against the required permission, applying any
// ownership rule when row context is supplied.
func Authorize(role auth.Role, required Permission, ctx *Context) Decision {
	perms, ok := RolePermissions[role]
	if !ok {
		return deny(fmt.Sprintf("unknown role %s", role))
	}
	granted := false
	for _, p := range perms {
		if p == required {
			granted = true
			break
		}
	}
	if !granted {
		return deny(fmt.Sprintf("role %s lacks %s", role, required))
	}
	if ctx != nil {
		if byResource, ok := ownershipRules[role]; ok {
			if rule, ok := byResource[required.Resource]; ok {
				return rule(*ctx)
			}
		}
	}
	return allow(fmt.Sprintf("role %s grants %s", role, required))
}

// HasPermission reports whether role may perform the required operation.
func HasPermission(role auth.Role, required Permission, ctx *Context) bool {
	return Authorize(role, required, ctx).Allowed
}

// HasPermissions is the conjunction over all required permissions.
func HasPermissions(role auth.Role, required []Permission, ctx *Context) bool {
	for _, p := range required {
		if !Authorize(role, p, ctx).Allowed {
			return false
		}
	}
	return true
}

// PermissionsFor returns the full permission set for a role.
func PermissionsFor(role auth.Role) []Permission {
	perms := RolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// CanAccessModule is the coarse route-gating check: does the role hold any
// permission on the module's resource. Ownership nuance is ignored here.
func CanAccessModule(role auth.Role, module string) bool {
	for _, p := range RolePermissions[role] {
		if p.Resource == module {
			return true
		}
	}
	return false
}

// ValidAction reports whether action belongs to the catalog vocabulary.
func ValidAction(action string) bool {
	switch action {
	case "read", "write", "delete", "admin":
		return true
	}
	return false
}

// ValidResource reports whether resource belongs to the catalog vocabulary.
func ValidResource(resource string) bool {
	for _, p := range Catalog {
		if p.Resource == resource {
			return true
		}
	}
	return false
}

// Parse builds a Permission from its "resource:action" string form.
func Parse(s string) (Permission, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			p := Permission{Resource: s[:i], Action: s[i+1:]}
			if !ValidResource(p.Resource) || !ValidAction(p.Action) {
				return Permission{}, fmt.Errorf("unknown permission %q", s)
			}
			return p, nil
		}
	}
	return Permission{}, fmt.Errorf("malformed permission %q", s)
}
