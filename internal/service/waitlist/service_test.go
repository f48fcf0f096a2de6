package waitlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

type stubWaitlistRepo struct {
	byEmail map[string]*domain.WaitlistEntry
}

func newStubWaitlistRepo() *stubWaitlistRepo {
	return &stubWaitlistRepo{byEmail: make(map[string]*domain.WaitlistEntry)}
}

func (s *stubWaitlistRepo) InsertWaitlistEntry(ctx context.Context, entry *domain.WaitlistEntry) error {
	if _, exists := s.byEmail[entry.Email]; exists {
		return repository.ErrConflict
	}
	copied := *entry
	s.byEmail[entry.Email] = &copied
	return nil
}

func (s *stubWaitlistRepo) GetWaitlistEntryByEmail(ctx context.Context, email string) (*domain.WaitlistEntry, error) {
	entry, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return entry, nil
}

func (s *stubWaitlistRepo) CountWaitlist(ctx context.Context) (int, error) {
	return len(s.byEmail), nil
}

func (s *stubWaitlistRepo) ListWaitlist(ctx context.Context, limit, offset int) ([]domain.WaitlistEntry, error) {
	out := make([]domain.WaitlistEntry, 0, len(s.byEmail))
	for _, entry := range s.byEmail {
		out = append(out, *entry)
	}
	return out, nil
}

func (s *stubWaitlistRepo) MarkWaitlistNotified(ctx context.Context, id string, at time.Time) error {
	for _, entry := range s.byEmail {
		if entry.ID == id {
			entry.NotifiedAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

func TestJoinIsIdempotent(t *testing.T) {
	repo := newStubWaitlistRepo()
	svc := New(repo, testLogger())

	first, err := svc.Join(context.Background(), "Person@Example.com", "Person", "landing")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !first.Created {
		t.Fatal("first join should create")
	}
	if first.Entry.Email != "person@example.com" {
		t.Fatalf("email not normalized: %q", first.Entry.Email)
	}

	second, err := svc.Join(context.Background(), "person@example.com", "", "footer")
	if err != nil {
		t.Fatalf("second join should succeed: %v", err)
	}
	if second.Created {
		t.Fatal("second join should not create")
	}
	if second.Entry.ID != first.Entry.ID {
		t.Fatal("second join should return the original entry")
	}

	count, err := svc.Count(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("count = %d err = %v, want 1", count, err)
	}
}

func TestJoinRejectsBadEmails(t *testing.T) {
	svc := New(newStubWaitlistRepo(), testLogger())
	for _, email := range []string{"", "   ", "not-an-email"} {
		if _, err := svc.Join(context.Background(), email, "", ""); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q: err = %v, want ErrInvalidEmail", email, err)
		}
	}
}

func TestMarkNotified(t *testing.T) {
	repo := newStubWaitlistRepo()
	svc := New(repo, testLogger())

	result, err := svc.Join(context.Background(), "a@b.co", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkNotified(context.Background(), result.Entry.ID); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	entry, _ := repo.GetWaitlistEntryByEmail(context.Background(), "a@b.co")
	if entry.NotifiedAt == nil {
		t.Fatal("NotifiedAt not set")
	}
}
