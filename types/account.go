package types

import "time"

// Role is the authorization level assigned to an account.
type Role string

const (
	RoleUser   Role = "user"
	RoleEditor Role = "editor"
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleEditor, RoleAuthor, RoleAdmin:
		return true
	}
	return false
}

// Status is the lifecycle state of an account. Only active accounts may
// authenticate.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusPending   Status = "pending"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
	StatusBanned    Status = "banned"
)

// Account represents a registered identity with credentials, role, and
// status. It is the only record this service persists.
type Account struct {
	// ID is the unique identifier of the account, assigned at creation.
	ID string `json:"id" db:"id"`

	// Username is the unique login name, stored lowercased.
	Username string `json:"username" db:"username"`

	// Email is the account's email address and login key.
	Email string `json:"email" db:"email"`

	// Role indicates the account's authorization level.
	Role Role `json:"role" db:"role"`

	// Status governs whether the account may authenticate.
	Status Status `json:"status" db:"status"`

	// PasswordHash stores the bcrypt hash of the current password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// RefreshToken is the single currently valid refresh token, or empty
	// when the account has no live session. Issuing a new one supersedes
	// the old one. Never exposed in API responses.
	RefreshToken string `json:"-" db:"refresh_token"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent mutation.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// LastLogin is the timestamp of the most recent successful login,
	// nil if the account has never logged in.
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login"`
}

// SanitizedAccount is the outward view of an Account with the secret
// fields removed. It is the only account shape that leaves the service.
type SanitizedAccount struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Sanitize maps an Account to its outward view field by field. The
// password hash and refresh token are deliberately not carried over.
func Sanitize(a Account) SanitizedAccount {
	return SanitizedAccount{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Role:      a.Role,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		LastLogin: a.LastLogin,
	}
}
