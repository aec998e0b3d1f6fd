// Package api exposes the reviewer over HTTP: authentication, synchronous
// artifact analysis, asynchronous batch reviews tracked as jobs, and tenant
// browsing backed by the SAP Integration Suite client.
package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenService issues and validates the service's own JWT bearer tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService returns a token service signing with secret. A zero ttl
// defaults to 24 hours.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// GenerateToken issues a signed token for the given subject.
func (s *TokenService) GenerateToken(subject string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Secret returns the signing key for middleware configuration.
func (s *TokenService) Secret() []byte {
	return s.secret
}

// CredentialStore validates login credentials against bcrypt password
// hashes. Credentials are provisioned at startup from configuration; this
// is deliberately not a user-management system.
type CredentialStore struct {
	hashes map[string][]byte
}

// NewCredentialStore builds a store from username to plaintext password
// pairs, hashing each password with bcrypt.
func NewCredentialStore(credentials map[string]string) (*CredentialStore, error) {
	store := &CredentialStore{hashes: make(map[string][]byte, len(credentials))}
	for user, password := range credentials {
		if user == "" || password == "" {
			return nil, fmt.Errorf("credentials require both username and password")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", user, err)
		}
		store.hashes[user] = hash
	}
	return store, nil
}

// Verify reports whether the username/password pair is valid.
func (s *CredentialStore) Verify(username, password string) bool {
	hash, ok := s.hashes[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
