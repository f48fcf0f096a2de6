package domain

import "time"

// User represents a platform account. Guest accounts are ephemeral users
// created when no external auth provider is configured.
type User struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    []byte
	Guest           bool
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	DeletedAt       *time.Time
}

// Deleted reports whether the account has been soft deleted.
func (u User) Deleted() bool {
	return u.DeletedAt != nil
}
