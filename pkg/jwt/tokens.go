package jwt

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Purpose values distinguish token kinds so a magic-link token can never be
// replayed as a session token.
const (
	PurposeSession   = "session"
	PurposeMagicLink = "magic_link"
	PurposeGuest     = "guest"
)

// Claims defines the JWT payload for platform tokens.
type Claims struct {
	UserID  string `json:"user_id"`
	TeamID  string `json:"team_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose,omitempty"`
	jwtlib.RegisteredClaims
}

// GenerateToken issues a signed session JWT with provided secret and ttl.
func GenerateToken(userID, teamID, secret string, ttl time.Duration) (string, error) {
	return GenerateTokenWithPurpose(userID, teamID, "", PurposeSession, secret, ttl)
}

// GenerateTokenWithPurpose issues a signed JWT carrying an explicit purpose.
func GenerateTokenWithPurpose(userID, teamID, email, purpose, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:  userID,
		TeamID:  teamID,
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    "shipkit",
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates and extracts claims from token.
func Parse(token string, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
