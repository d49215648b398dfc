package identity

import (
	"time"

	"github.com/google/uuid"
)

// Staff roles. The prefix of a staff matricule is derived from the role.
const (
	RoleReceptionist       = "receptionist"
	RoleCashier            = "cashier"
	RoleNurse              = "nurse"
	RolePhysician          = "physician"
	RoleLabTech            = "lab-tech"
	RolePharmacist         = "pharmacist"
	RoleAccountant         = "accountant"
	RoleMaterialAccountant = "material-accountant"
	RoleDirector           = "director"
)

// rolePrefixes maps each role to its matricule prefix.
var rolePrefixes = map[string]string{
	RoleReceptionist:       "REC",
	RoleCashier:            "CAI",
	RoleNurse:              "INF",
	RolePhysician:          "MED",
	RoleLabTech:            "LAB",
	RolePharmacist:         "PHA",
	RoleAccountant:         "CPT",
	RoleMaterialAccountant: "MAT",
	RoleDirector:           "DIR",
}

// ValidRole reports whether role is one of the staff roles.
func ValidRole(role string) bool {
	_, ok := rolePrefixes[role]
	return ok
}

// RolePrefix returns the matricule prefix for a role, empty when unknown.
func RolePrefix(role string) string {
	return rolePrefixes[role]
}

// Employment statuses.
const (
	EmploymentActive    = "active"
	EmploymentDismissed = "dismissed"
	EmploymentRetired   = "retired"
)

// Connection statuses.
const (
	ConnectionActive   = "active"
	ConnectionInactive = "inactive"
)

// Staff maps to the staff table. Physicians are staff with a specialty.
type Staff struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Matricule        string     `db:"matricule" json:"matricule"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Email            string     `db:"email" json:"email"`
	Phone            string     `db:"phone" json:"phone"`
	BirthDate        *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Role             string     `db:"role" json:"role"`
	Specialty        *string    `db:"specialty" json:"specialty,omitempty"`
	ServiceID        *uuid.UUID `db:"service_id" json:"service_id,omitempty"`
	EmploymentStatus string     `db:"employment_status" json:"employment_status"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	PasswordExpiry   *time.Time `db:"password_expiry" json:"password_expiry,omitempty"`
	FirstLoginDone   bool       `db:"first_login_done" json:"first_login_done"`
	ConnectionStatus string     `db:"connection_status" json:"connection_status"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns "FirstName LastName".
func (s *Staff) FullName() string {
	if s.FirstName == "" {
		return s.LastName
	}
	return s.FirstName + " " + s.LastName
}

// Admin is the singleton bootstrap principal. Exactly one row may exist.
type Admin struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Login        string    `db:"login" json:"login"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Principal is the authenticated identity surfaced in login responses.
type Principal struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Role      string    `json:"role,omitempty"`
	Matricule string    `json:"matricule,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Email     string    `json:"email,omitempty"`
}
