package domain

import "time"

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	ID        string
	Role      Role
	FirstName string
	Email     string
}

// ActorFromUser builds an Actor for u.
func ActorFromUser(u *User) Actor {
	return Actor{ID: u.ID, Role: u.Role, FirstName: u.FirstName, Email: u.Email}
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsStaff reports whether the actor is support or admin.
func (a Actor) IsStaff() bool { return a.Role == RoleSupport || a.Role == RoleAdmin }

// Token represents issued authentication token metadata.
type Token struct {
	SubjectID string
	Role      Role
	ExpiresAt time.Time
	IssuedAt  time.Time
}
