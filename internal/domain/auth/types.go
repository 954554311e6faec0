package auth

// Package auth contains domain-level types for authentication and
// authorization. It is pure and free of framework/adapter concerns.

// Role represents an application's authorization role.
// Kept as an open string: the role set is data-driven and the auth core never
// validates it against a fixed enum. The constants below are the roles the
// middleware and handlers reason about.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// UserAccount is the persistent user-role record. Exactly one refresh token
// is live per account: RefreshToken holds it, and any presented refresh token
// that differs from it is treated as revoked or replayed.
type UserAccount struct {
	ID             int64   `json:"id"               db:"id"`
	Role           Role    `json:"role"             db:"role"`
	EmployeeID     *int64  `json:"employee_id"      db:"employee_id"`
	Email          string  `json:"email"            db:"email"`
	ProviderUserID string  `json:"provider_user_id" db:"provider_user_id"`
	RefreshToken   *string `json:"-"                db:"refresh_token"`
	Active         bool    `json:"active"           db:"active"`
}

// Profile is the identity-provider view of a user, reduced to the fields the
// matching step needs. Email carries mail falling back to userPrincipalName.
type Profile struct {
	ID    string
	Email string
}

// Identity is the per-request identity context attached after successful
// authentication. It is never persisted.
type Identity struct {
	ID             int64  `json:"id"`
	Role           Role   `json:"role"`
	EmployeeID     *int64 `json:"employee"`
	ProviderUserID string `json:"msGraphUserId"`
	Email          string `json:"email"`
}

// IsAdmin returns true if the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Employee is the directory record consulted during login initiation.
// Only the columns the identity resolver reads are mapped.
type Employee struct {
	ID           int64   `db:"id"`
	Code         string  `db:"code"`
	ContactEmail *string `db:"contact_email"`
}
