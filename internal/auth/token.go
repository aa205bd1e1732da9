// Package auth issues and verifies the bearer tokens that identify actors.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"ridedispatch/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingClaim = errors.New("missing claim")
)

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Role   domain.ActorRole
}

// Config holds token settings.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// GenerateToken signs a token for the given actor and returns it with its
// expiry as a unix timestamp.
func GenerateToken(actor Actor, cfg Config, now time.Time) (string, int64, error) {
	expiresAt := now.Add(cfg.TTL).Unix()

	claims := jwt.MapClaims{
		"user_id": actor.UserID,
		"role":    string(actor.Role),
		"exp":     expiresAt,
		"iat":     now.Unix(),
		"iss":     cfg.Issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", 0, err
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies the signature and expiry of tokenString and
// returns the actor it names.
func ValidateToken(tokenString, secret string) (Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Actor{}, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return Actor{}, fmt.Errorf("%w: user_id", ErrMissingClaim)
	}
	rawRole, _ := claims["role"].(string)
	role, ok := domain.ParseActorRole(rawRole)
	if !ok {
		return Actor{}, fmt.Errorf("%w: role", ErrMissingClaim)
	}

	return Actor{UserID: userID, Role: role}, nil
}
