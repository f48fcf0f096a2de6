package apikey

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
)

type stubKeyRepository struct {
	byHash  map[string]*domain.APIKey
	byUser  map[string][]domain.APIKey
	touched []string
	revoked []string
}

func newStubKeyRepository() *stubKeyRepository {
	return &stubKeyRepository{byHash: make(map[string]*domain.APIKey), byUser: make(map[string][]domain.APIKey)}
}

func (s *stubKeyRepository) CreateAPIKey(_ context.Context, key *domain.APIKey) error {
	s.byHash[key.KeyHash] = key
	s.byUser[key.UserID] = append(s.byUser[key.UserID], *key)
	return nil
}

func (s *stubKeyRepository) GetAPIKeyByHash(_ context.Context, hash string) (*domain.APIKey, error) {
	if key, ok := s.byHash[hash]; ok {
		copied := *key
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubKeyRepository) ListAPIKeysByUser(_ context.Context, userID string) ([]domain.APIKey, error) {
	return append([]domain.APIKey(nil), s.byUser[userID]...), nil
}

func (s *stubKeyRepository) TouchAPIKey(_ context.Context, id string, _ time.Time) error {
	s.touched = append(s.touched, id)
	return nil
}

func (s *stubKeyRepository) RevokeAPIKey(_ context.Context, id string, revokedAt time.Time) error {
	s.revoked = append(s.revoked, id)
	for _, key := range s.byHash {
		if key.ID == id {
			key.RevokedAt = &revokedAt
			return nil
		}
	}
	return repository.ErrNotFound
}

func newService(repo *stubKeyRepository) Service {
	return New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateReturnsPlaintextOnce(t *testing.T) {
	repo := newStubKeyRepository()
	svc := newService(repo)

	created, err := svc.Create(context.Background(), "user-1", "ci key", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(created.Plaintext, "sk_") {
		t.Fatalf("unexpected key format %q", created.Plaintext)
	}
	if created.Key.KeyHash == created.Plaintext {
		t.Fatalf("plaintext must not be stored as hash")
	}
	if !strings.HasPrefix(created.Plaintext, created.Key.KeyPrefix) {
		t.Fatalf("prefix %q should match plaintext %q", created.Key.KeyPrefix, created.Plaintext)
	}
}

func TestVerifyAcceptsActiveKey(t *testing.T) {
	repo := newStubKeyRepository()
	svc := newService(repo)
	created, err := svc.Create(context.Background(), "user-1", "ci key", time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	key, err := svc.Verify(context.Background(), created.Plaintext)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if key.UserID != "user-1" {
		t.Fatalf("unexpected owner %q", key.UserID)
	}
	if len(repo.touched) != 1 {
		t.Fatalf("expected last-used touch, got %d", len(repo.touched))
	}
}

func TestVerifyRejectsExpiredAndRevoked(t *testing.T) {
	repo := newStubKeyRepository()
	svc := newService(repo)

	expired := time.Now().Add(-time.Minute)
	repo.byHash["dead"] = &domain.APIKey{ID: "k1", UserID: "user-1", KeyHash: "dead", ExpiresAt: &expired}
	if _, err := svc.Verify(context.Background(), "unknown"); !errors.Is(err, ErrKeyInvalid) {
		t.Fatalf("expected ErrKeyInvalid for unknown key, got %v", err)
	}

	created, err := svc.Create(context.Background(), "user-1", "short lived", time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Revoke(context.Background(), "user-1", created.Key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Verify(context.Background(), created.Plaintext); !errors.Is(err, ErrKeyInvalid) {
		t.Fatalf("expected ErrKeyInvalid after revocation, got %v", err)
	}
}

func TestRevokeRequiresOwnership(t *testing.T) {
	repo := newStubKeyRepository()
	svc := newService(repo)
	created, err := svc.Create(context.Background(), "user-1", "key", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Revoke(context.Background(), "intruder", created.Key.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign key, got %v", err)
	}
}
