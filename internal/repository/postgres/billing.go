package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

// InsertPayment records a billing event. Duplicate provider event IDs return
// ErrConflict so webhook redelivery stays idempotent.
func (r *Repository) InsertPayment(ctx context.Context, payment *domain.Payment) error {
	const query = `INSERT INTO payments (id, provider, event_id, event_type, customer_email, user_id, amount_cents, currency, status, raw, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, query,
		payment.ID, payment.Provider, payment.EventID, payment.EventType, payment.CustomerEmail,
		payment.UserID, payment.AmountCents, payment.Currency, payment.Status, payment.Raw, payment.ProcessedAt)
	return mapWriteErr(err)
}

const paymentColumns = `id, provider, event_id, event_type, customer_email, user_id, amount_cents, currency, status, raw, processed_at`

// GetPaymentByEventID looks a payment up by provider event identifier.
func (r *Repository) GetPaymentByEventID(ctx context.Context, provider, eventID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider = $1 AND event_id = $2`
	var p domain.Payment
	err := r.pool.QueryRow(ctx, query, provider, eventID).Scan(&p.ID, &p.Provider, &p.EventID, &p.EventType,
		&p.CustomerEmail, &p.UserID, &p.AmountCents, &p.Currency, &p.Status, &p.Raw, &p.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListPaymentsByEmail returns payments for a customer, newest first.
func (r *Repository) ListPaymentsByEmail(ctx context.Context, email string, limit int) ([]domain.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE customer_email = $1 ORDER BY processed_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.Provider, &p.EventID, &p.EventType, &p.CustomerEmail,
			&p.UserID, &p.AmountCents, &p.Currency, &p.Status, &p.Raw, &p.ProcessedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CreateFeedback inserts a feedback entry.
func (r *Repository) CreateFeedback(ctx context.Context, entry *domain.Feedback) error {
	const query = `INSERT INTO feedback (id, user_id, content, source, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, entry.ID, entry.UserID, entry.Content, entry.Source, entry.Status, entry.CreatedAt)
	return err
}

// ListFeedback returns feedback entries, optionally filtered by status.
func (r *Repository) ListFeedback(ctx context.Context, status string, limit, offset int) ([]domain.Feedback, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT id, user_id, content, source, status, created_at
		FROM feedback
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.Feedback, 0)
	for rows.Next() {
		var f domain.Feedback
		if err := rows.Scan(&f.ID, &f.UserID, &f.Content, &f.Source, &f.Status, &f.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, f)
	}
	return entries, rows.Err()
}

// UpdateFeedbackStatus moves an entry through the review workflow.
func (r *Repository) UpdateFeedbackStatus(ctx context.Context, id, status string) error {
	const query = `UPDATE feedback SET status = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// InsertWaitlistEntry stores a waitlist signup. Duplicate emails return
// ErrConflict.
func (r *Repository) InsertWaitlistEntry(ctx context.Context, entry *domain.WaitlistEntry) error {
	const query = `INSERT INTO waitlist (id, email, name, source, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, entry.ID, entry.Email, entry.Name, entry.Source, entry.CreatedAt)
	return mapWriteErr(err)
}

// GetWaitlistEntryByEmail fetches an entry by email.
func (r *Repository) GetWaitlistEntryByEmail(ctx context.Context, email string) (*domain.WaitlistEntry, error) {
	const query = `SELECT id, email, name, source, notified_at, created_at FROM waitlist WHERE email = $1`
	var e domain.WaitlistEntry
	err := r.pool.QueryRow(ctx, query, email).Scan(&e.ID, &e.Email, &e.Name, &e.Source, &e.NotifiedAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// CountWaitlist returns the number of waitlist entries.
func (r *Repository) CountWaitlist(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(1) FROM waitlist`
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListWaitlist returns entries oldest first, the order access is granted in.
func (r *Repository) ListWaitlist(ctx context.Context, limit, offset int) ([]domain.WaitlistEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT id, email, name, source, notified_at, created_at FROM waitlist ORDER BY created_at LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.WaitlistEntry, 0)
	for rows.Next() {
		var e domain.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.Email, &e.Name, &e.Source, &e.NotifiedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkWaitlistNotified records when the invite email went out.
func (r *Repository) MarkWaitlistNotified(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE waitlist SET notified_at = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
