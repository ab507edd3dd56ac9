// Package auth implements user registration, password verification, and
// JWT issuance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/store"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 30 * time.Minute

// Service issues and verifies tokens against the user store.
type Service struct {
	store  *store.Store
	secret []byte
}

// NewService creates an auth service. The secret signs all issued tokens;
// rotating it invalidates outstanding sessions.
func NewService(st *store.Store, secret string) *Service {
	return &Service{store: st, secret: []byte(secret)}
}

// Register creates a new user with a bcrypt-hashed password and returns
// its id. Returns apperr.ErrAlreadyExists when the username is taken.
func (s *Service) Register(ctx context.Context, username, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("auth: hash password: %w", err)
	}
	return s.store.CreateUser(ctx, username, string(hash))
}

// Login verifies the credentials and returns a signed token. A wrong
// username and a wrong password are indistinguishable to the caller: both
// return apperr.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.store.UserByName(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", apperr.ErrInvalidCredentials
	}
	return s.issue(u.ID)
}

func (s *Service) issue(userID int64) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"identity": userID,
		"iat":      now.Unix(),
		"exp":      now.Add(TokenTTL).Unix(),
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token and returns the user id it was issued for.
// Expired, malformed, or wrongly signed tokens return
// apperr.ErrInvalidCredentials.
func (s *Service) Verify(tokenString string) (int64, error) {
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return 0, apperr.ErrInvalidCredentials
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, apperr.ErrInvalidCredentials
	}
	id, ok := claims["identity"].(float64)
	if !ok || id <= 0 {
		return 0, apperr.ErrInvalidCredentials
	}
	return int64(id), nil
}
