package domain

import "time"

// Payment statuses derived from billing webhook events.
const (
	PaymentStatusPaid      = "paid"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusCancelled = "cancelled"
)

// Payment records the outcome of a billing provider event. EventID is unique
// so webhook redelivery stays idempotent. Raw holds the AES-GCM sealed event
// payload; the billing service unseals it on read.
type Payment struct {
	ID            string
	Provider      string
	EventID       string
	EventType     string
	CustomerEmail string
	UserID        string
	AmountCents   int64
	Currency      string
	Status        string
	Raw           []byte
	ProcessedAt   time.Time
}
