package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
	jwtpkg "github.com/shipkit/platform/pkg/jwt"
)

var ErrMagicLinkInvalid = errors.New("auth: magic link invalid or expired")

// RequestMagicLink issues a short-lived sign-in token and emails it. An
// unknown email gets an account created on redemption, so the response never
// reveals whether the address is registered.
func (s Service) RequestMagicLink(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	token, err := jwtpkg.GenerateTokenWithPurpose("", "", email, jwtpkg.PurposeMagicLink, s.cfg.JWTSecret, s.cfg.MagicLinkTTL)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/auth/magic?token=%s", strings.TrimRight(s.cfg.SiteURL, "/"), url.QueryEscape(token))
	if err := s.mailer.SendMagicLink(ctx, email, link); err != nil {
		return err
	}
	s.logger.Info("magic link requested", "email", email)
	return nil
}

// RedeemMagicLink validates a magic-link token, creating the account on
// first use, and returns a session. Redemption marks the email verified.
func (s Service) RedeemMagicLink(ctx context.Context, token string) (*domain.User, TokenPair, error) {
	claims, err := jwtpkg.Parse(strings.TrimSpace(token), s.cfg.JWTSecret)
	if err != nil || claims.Purpose != jwtpkg.PurposeMagicLink || claims.Email == "" {
		return nil, TokenPair{}, ErrMagicLinkInvalid
	}
	now := time.Now().UTC()
	user, err := s.users.GetUserByEmail(ctx, claims.Email)
	if errors.Is(err, repository.ErrNotFound) {
		user = &domain.User{
			ID:              uuid.NewString(),
			Email:           claims.Email,
			EmailVerifiedAt: &now,
			CreatedAt:       now,
		}
		if createErr := s.users.CreateUser(ctx, user); createErr != nil {
			return nil, TokenPair{}, createErr
		}
		s.logger.Info("user created via magic link", "user_id", user.ID)
	} else if err != nil {
		return nil, TokenPair{}, err
	} else if user.EmailVerifiedAt == nil {
		if err := s.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
			s.logger.Warn("failed to mark email verified", "user_id", user.ID, "error", err)
		} else {
			user.EmailVerifiedAt = &now
		}
	}
	tokens, err := s.issueTokens(user.ID, "", jwtpkg.PurposeSession, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("magic link redeemed", "user_id", user.ID)
	return user, tokens, nil
}
