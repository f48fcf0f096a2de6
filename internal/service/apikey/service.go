package apikey

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
	"github.com/shipkit/platform/pkg/crypto"
)

const keyByteLength = 24

var (
	ErrNameRequired = errors.New("apikey: name is required")
	ErrKeyInvalid   = errors.New("apikey: key invalid or revoked")
)

// Service manages programmatic credentials. Plaintext keys are returned once
// at creation and never stored.
type Service struct {
	keys   repository.APIKeyRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(keys repository.APIKeyRepository, logger *slog.Logger) Service {
	return Service{keys: keys, logger: logger}
}

// Created pairs the persisted record with its one-time plaintext.
type Created struct {
	Key       domain.APIKey
	Plaintext string
}

// Create mints a key for the user. ttl of zero means no expiry.
func (s Service) Create(ctx context.Context, userID, name string, ttl time.Duration) (*Created, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	token, err := crypto.RandomToken(keyByteLength)
	if err != nil {
		return nil, err
	}
	plaintext := "sk_" + token
	now := time.Now().UTC()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   crypto.HashToken(plaintext),
		KeyPrefix: plaintext[:10],
		CreatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		key.ExpiresAt = &expires
	}
	if err := s.keys.CreateAPIKey(ctx, &key); err != nil {
		return nil, err
	}
	s.logger.Info("api key created", "key_id", key.ID, "user_id", userID)
	return &Created{Key: key, Plaintext: plaintext}, nil
}

// Verify authenticates a plaintext key and touches its last-used time.
func (s Service) Verify(ctx context.Context, plaintext string) (*domain.APIKey, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return nil, ErrKeyInvalid
	}
	key, err := s.keys.GetAPIKeyByHash(ctx, crypto.HashToken(plaintext))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrKeyInvalid
		}
		return nil, err
	}
	now := time.Now().UTC()
	if !key.Active(now) {
		return nil, ErrKeyInvalid
	}
	if err := s.keys.TouchAPIKey(ctx, key.ID, now); err != nil {
		s.logger.Warn("failed to touch api key", "key_id", key.ID, "error", err)
	}
	return key, nil
}

// Revoke disables a key owned by the user.
func (s Service) Revoke(ctx context.Context, userID, keyID string) error {
	keys, err := s.keys.ListAPIKeysByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if key.ID == keyID {
			if err := s.keys.RevokeAPIKey(ctx, keyID, time.Now().UTC()); err != nil {
				return err
			}
			s.logger.Info("api key revoked", "key_id", keyID, "user_id", userID)
			return nil
		}
	}
	return repository.ErrNotFound
}

// List returns the user's keys, hashes included for internal use only.
func (s Service) List(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return s.keys.ListAPIKeysByUser(ctx, userID)
}
