package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shipkit/platform/internal/domain"
	jwtpkg "github.com/shipkit/platform/pkg/jwt"
)

var ErrGuestDisabled = errors.New("auth: guest sessions disabled when auth providers are configured")

// GuestEnabled reports whether guest sessions are available. Guests are a
// fallback only: the moment any auth provider is configured they turn off.
func (s Service) GuestEnabled() bool {
	return len(s.cfg.AuthProviders) == 0
}

// StartGuest creates an ephemeral guest account with a short-lived session.
func (s Service) StartGuest(ctx context.Context) (*domain.User, TokenPair, error) {
	if !s.GuestEnabled() {
		return nil, TokenPair{}, ErrGuestDisabled
	}
	id := uuid.NewString()
	user := &domain.User{
		ID:        id,
		Email:     fmt.Sprintf("guest-%s@guests.invalid", id[:8]),
		Name:      "Guest",
		Guest:     true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, TokenPair{}, err
	}
	tokens, err := s.issueTokens(user.ID, "", jwtpkg.PurposeGuest, s.cfg.GuestSessionTTL)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("guest session started", "user_id", user.ID)
	return user, tokens, nil
}
