package domain

import (
	"strings"
	"time"
	"unicode"
)

// Role is the platform role of a user.
type Role string

const (
	RoleIntern  Role = "intern"
	RoleSupport Role = "support"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleIntern || r == RoleSupport || r == RoleAdmin
}

// ApprovalStatus tracks the onboarding review of a user.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// User is the read model of a platform account. Accounts are managed by the
// user module; the support desk only reads them.
type User struct {
	ID             string
	FirstName      string
	LastName       string
	Email          string
	PasswordHash   string
	Role           Role
	ApprovalStatus ApprovalStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsEligibleAgent reports whether the user may receive round-robin assignments.
func (u *User) IsEligibleAgent() bool {
	return u.Role == RoleSupport && u.ApprovalStatus == ApprovalApproved
}

// Initial returns the upper-cased first letter of name, or 0 when name is blank.
func Initial(name string) rune {
	for _, r := range strings.TrimSpace(name) {
		return unicode.ToUpper(r)
	}
	return 0
}
