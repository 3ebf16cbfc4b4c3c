// Package auth provides user registration, login, and JWT request
// authentication for the market engine. Passwords are stored as bcrypt
// hashes in memory; tokens are HS256 JWTs carrying the owner name.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists is returned when registering a name that is taken.
	ErrUserExists = errors.New("auth: user already exists")

	// ErrInvalidCredentials is returned for unknown users or bad passwords.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

type contextKey struct{}

var ownerKey contextKey

// Service is the in-memory user store and token issuer.
type Service struct {
	mu     sync.RWMutex
	users  map[string][]byte // name → bcrypt hash
	secret []byte
	ttl    time.Duration
}

// NewService creates an auth service signing tokens with secret, valid for ttl.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{
		users:  make(map[string][]byte),
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Register stores a new user with a bcrypt-hashed password.
func (s *Service) Register(name, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[name]; ok {
		return ErrUserExists
	}
	s.users[name] = hash
	return nil
}

// Login verifies the credentials and returns a signed JWT.
func (s *Service) Login(name, password string) (string, error) {
	s.mu.RLock()
	hash, ok := s.users[name]
	s.mu.RUnlock()

	if !ok {
		return "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"name": name,
		"exp":  time.Now().Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// verify parses the token and returns the owner name it carries.
func (s *Service) verify(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredentials
	}
	name, ok := claims["name"].(string)
	if !ok || name == "" {
		return "", ErrInvalidCredentials
	}
	return name, nil
}

// Middleware rejects requests without a valid token and injects the owner
// name into the request context. The token is read from the Authorization
// header; a "Bearer " prefix is accepted but not required.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			writeAuthError(w, "token is required", http.StatusForbidden)
			return
		}
		owner, err := s.verify(raw)
		if err != nil {
			slog.Debug("token rejected", "err", err)
			writeAuthError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

// Owner returns the authenticated owner name from the request context, or
// the empty string for unauthenticated requests.
func Owner(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

func writeAuthError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
