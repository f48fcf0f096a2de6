package domain

import "time"

// WaitlistEntry records an email waiting for access. Email is unique; joining
// twice is an idempotent success.
type WaitlistEntry struct {
	ID         string
	Email      string
	Name       string
	Source     string
	NotifiedAt *time.Time
	CreatedAt  time.Time
}
