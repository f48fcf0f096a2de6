package feedback

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

var (
	ErrEmptyContent  = errors.New("feedback: content required")
	ErrContentTooBig = errors.New("feedback: content too long")
	ErrBadStatus     = errors.New("feedback: unknown status")
)

const maxContentLength = 5000

// Service records and triages user feedback.
type Service struct {
	feedback repository.FeedbackRepository
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a feedback service.
func New(feedback repository.FeedbackRepository, logger *slog.Logger) Service {
	return Service{feedback: feedback, logger: logger, now: time.Now}
}

// Submit stores a feedback entry. UserID may be empty for anonymous feedback.
func (s Service) Submit(ctx context.Context, userID, content, source string) (*domain.Feedback, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > maxContentLength {
		return nil, ErrContentTooBig
	}
	entry := &domain.Feedback{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Source:    strings.TrimSpace(source),
		Status:    domain.FeedbackStatusNew,
		CreatedAt: s.now().UTC(),
	}
	if err := s.feedback.CreateFeedback(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("feedback submitted", "feedback_id", entry.ID, "source", entry.Source)
	return entry, nil
}

// List returns feedback entries, optionally filtered by status.
func (s Service) List(ctx context.Context, status string, limit, offset int) ([]domain.Feedback, error) {
	if status != "" && !validStatus(status) {
		return nil, ErrBadStatus
	}
	return s.feedback.ListFeedback(ctx, status, limit, offset)
}

// SetStatus moves an entry through the triage states.
func (s Service) SetStatus(ctx context.Context, id, status string) error {
	if !validStatus(status) {
		return ErrBadStatus
	}
	return s.feedback.UpdateFeedbackStatus(ctx, id, status)
}

func validStatus(status string) bool {
	switch status {
	case domain.FeedbackStatusNew, domain.FeedbackStatusReviewed, domain.FeedbackStatusResolved:
		return true
	}
	return false
}
