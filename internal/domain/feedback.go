package domain

import "time"

// Feedback statuses.
const (
	FeedbackStatusNew      = "new"
	FeedbackStatusReviewed = "reviewed"
	FeedbackStatusResolved = "resolved"
)

// Feedback is a user-submitted note. UserID is empty for anonymous entries.
type Feedback struct {
	ID        string
	UserID    string
	Content   string
	Source    string
	Status    string
	CreatedAt time.Time
}
