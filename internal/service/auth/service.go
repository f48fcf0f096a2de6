package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/mail"
	"github.com/shipkit/platform/internal/repository"
	"github.com/shipkit/platform/pkg/config"
	"github.com/shipkit/platform/pkg/crypto"
	jwtpkg "github.com/shipkit/platform/pkg/jwt"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrEmailRequired      = errors.New("auth: email is required")
	ErrPasswordTooShort   = errors.New("auth: password must be at least 8 characters")
	ErrEmailTaken         = errors.New("auth: email already registered")
)

// Service handles authentication workflows: password signup/login, magic
// links and guest sessions.
type Service struct {
	users  repository.UserRepository
	mailer mail.Mailer
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, mailer mail.Mailer, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, mailer: mailer, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// Signup registers a new user.
func (s Service) Signup(ctx context.Context, email, name, password string) (*domain.User, TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, TokenPair{}, ErrEmailRequired
	}
	if len(password) < 8 {
		return nil, TokenPair{}, ErrPasswordTooShort
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, TokenPair{}, ErrEmailTaken
		}
		return nil, TokenPair{}, err
	}
	tokens, err := s.issueTokens(user.ID, "", jwtpkg.PurposeSession, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, tokens, nil
}

// Login authenticates a user and returns tokens.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if len(user.PasswordHash) == 0 {
		// Magic-link-only accounts have no password to check.
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(user.ID, "", jwtpkg.PurposeSession, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Authorize validates a bearer token and returns the associated user and claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	switch claims.Purpose {
	case jwtpkg.PurposeSession, jwtpkg.PurposeGuest:
	default:
		return nil, nil, errors.New("token purpose not valid for sessions")
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// DeleteAccount soft-deletes the user record.
func (s Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.users.SoftDeleteUser(ctx, userID, time.Now().UTC()); err != nil {
		return err
	}
	s.logger.Info("account deleted", "user_id", userID)
	return nil
}

func (s Service) issueTokens(userID, teamID, purpose string, ttl time.Duration) (TokenPair, error) {
	access, err := s.signToken(userID, teamID, purpose, ttl)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.signToken(userID, teamID, purpose, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: ttl}, nil
}

func (s Service) signToken(userID, teamID, purpose string, ttl time.Duration) (string, error) {
	if purpose == jwtpkg.PurposeSession {
		return jwtpkg.GenerateToken(userID, teamID, s.cfg.JWTSecret, ttl)
	}
	return jwtpkg.GenerateTokenWithPurpose(userID, teamID, "", purpose, s.cfg.JWTSecret, ttl)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
