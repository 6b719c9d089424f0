// Package admin serves the key-gated ledger panel: view, download and
// overwrite-upload of the certificate ledger.
package admin

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionSubject = "admin"
	sessionIssuer  = "certificate-portal"
	// DefaultSessionTTL bounds how long a login lasts
	DefaultSessionTTL = time.Hour
)

// ErrAdminKeyRequired is returned when no admin key is configured
var ErrAdminKeyRequired = errors.New("admin key is required")

// Sessions checks the admin key and issues signed session tokens
type Sessions struct {
	adminKey []byte
	keyHash  []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewSessions creates a session issuer. When secret is empty the signing key
// is derived from the admin key.
func NewSessions(adminKey, secret string, ttl time.Duration) (*Sessions, error) {
	if adminKey == "" {
		return nil, ErrAdminKeyRequired
	}
	return newSessions([]byte(adminKey), nil, secret, ttl), nil
}

// NewHashedSessions is NewSessions for an admin key stored as a bcrypt hash
func NewHashedSessions(keyHash, secret string, ttl time.Duration) (*Sessions, error) {
	if keyHash == "" {
		return nil, ErrAdminKeyRequired
	}
	if _, err := bcrypt.Cost([]byte(keyHash)); err != nil {
		return nil, fmt.Errorf("invalid admin key hash: %w", err)
	}
	return newSessions(nil, []byte(keyHash), secret, ttl), nil
}

func newSessions(adminKey, keyHash []byte, secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	signing := []byte(secret)
	if len(signing) == 0 {
		sum := sha256.Sum256(append([]byte("admin-session:"), append(adminKey, keyHash...)...))
		signing = sum[:]
	}
	return &Sessions{
		adminKey: adminKey,
		keyHash:  keyHash,
		secret:   signing,
		ttl:      ttl,
		now:      time.Now,
	}
}

// CheckKey compares key with the admin key in constant time, or against the
// bcrypt hash when one is configured
func (s *Sessions) CheckKey(key string) bool {
	if s.keyHash != nil {
		return key != "" && bcrypt.CompareHashAndPassword(s.keyHash, []byte(key)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(key), s.adminKey) == 1
}

// TTL returns the session lifetime
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed HS256 token valid for the session TTL
func (s *Sessions) Issue() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   sessionSubject,
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and subject of token
func (s *Sessions) Verify(token string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithSubject(sessionSubject),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	return nil
}
