package waitlist

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

var ErrInvalidEmail = errors.New("waitlist: valid email required")

// Service manages the pre-launch waitlist.
type Service struct {
	waitlist repository.WaitlistRepository
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a waitlist service.
func New(waitlist repository.WaitlistRepository, logger *slog.Logger) Service {
	return Service{waitlist: waitlist, logger: logger, now: time.Now}
}

// JoinResult reports the entry plus whether this join created it.
type JoinResult struct {
	Entry   domain.WaitlistEntry `json:"entry"`
	Created bool                 `json:"created"`
}

// Join adds an email to the waitlist. Joining with an email already on the
// list succeeds and returns the existing entry.
func (s Service) Join(ctx context.Context, email, name, source string) (*JoinResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	entry := &domain.WaitlistEntry{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Source:    strings.TrimSpace(source),
		CreatedAt: s.now().UTC(),
	}
	err := s.waitlist.InsertWaitlistEntry(ctx, entry)
	if err == nil {
		s.logger.Info("waitlist joined", "waitlist_id", entry.ID, "source", entry.Source)
		return &JoinResult{Entry: *entry, Created: true}, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return nil, err
	}
	existing, err := s.waitlist.GetWaitlistEntryByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return &JoinResult{Entry: *existing, Created: false}, nil
}

// Count returns the waitlist size.
func (s Service) Count(ctx context.Context) (int, error) {
	return s.waitlist.CountWaitlist(ctx)
}

// List returns waitlist entries for the admin surface.
func (s Service) List(ctx context.Context, limit, offset int) ([]domain.WaitlistEntry, error) {
	return s.waitlist.ListWaitlist(ctx, limit, offset)
}

// MarkNotified records that an invite went out.
func (s Service) MarkNotified(ctx context.Context, id string) error {
	return s.waitlist.MarkWaitlistNotified(ctx, id, s.now().UTC())
}
