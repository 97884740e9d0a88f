// Package auth implements the gateway's opaque-token Auth Facade (C6):
// username/password in, opaque bearer token out, with revocation support.
// It is deliberately minimal — a boundary the core consumes, not the hard
// part of the system.
package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"

	internalauth "github.com/lilwiggy/twap-gateway/internal/auth"
	"github.com/lilwiggy/twap-gateway/pkg/errors"
)

// ErrInvalidToken is returned by VerifyToken for both unknown and revoked
// tokens, per the spec's requirement that revocation be indistinguishable
// from an unrecognised token to the caller.
var ErrInvalidToken = errors.NewExchangeError("auth", "verify_token", "invalid token", nil)

// ErrInvalidCredentials is returned by Authenticate on a bad username or
// password.
var ErrInvalidCredentials = errors.NewExchangeError("auth", "authenticate", "invalid credentials", nil)

// CredentialStore resolves a username to its pre-hashed password record.
// Implementations may back this with a config file, database, or anything
// else; the facade never stores plaintext passwords.
type CredentialStore interface {
	PasswordHash(username string) (hash string, ok bool)
}

// StaticCredentialStore is a CredentialStore backed by a fixed in-memory
// map, suitable for a single-operator deployment or tests.
type StaticCredentialStore map[string]string

// PasswordHash implements CredentialStore.
func (s StaticCredentialStore) PasswordHash(username string) (string, bool) {
	hash, ok := s[username]
	return hash, ok
}

// Facade issues and verifies opaque bearer tokens bound to usernames.
type Facade struct {
	store     CredentialStore
	generator *internalauth.TokenGenerator

	mu      sync.RWMutex
	tokens  map[string]string // username -> token
	byToken map[string]string // token -> username
	revoked map[string]struct{}
}

// New creates an Auth Facade backed by store.
func New(store CredentialStore) *Facade {
	return &Facade{
		store:     store,
		generator: internalauth.NewTokenGenerator(32),
		tokens:    make(map[string]string),
		byToken:   make(map[string]string),
		revoked:   make(map[string]struct{}),
	}
}

// Authenticate verifies username/password via a constant-time bcrypt
// comparison against the pre-hashed record and returns a token, issuing a
// fresh one only if the user does not already hold a live one.
func (f *Facade) Authenticate(username, password string) (string, error) {
	hash, ok := f.store.PasswordHash(username)
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if token, ok := f.tokens[username]; ok {
		if _, revoked := f.revoked[token]; !revoked {
			return token, nil
		}
	}

	token, err := f.generator.Generate()
	if err != nil {
		return "", err
	}
	f.tokens[username] = token
	f.byToken[token] = username
	return token, nil
}

// VerifyToken resolves token to its bound username, failing with
// ErrInvalidToken for both unknown and revoked tokens.
func (f *Facade) VerifyToken(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, revoked := f.revoked[token]; revoked {
		return "", ErrInvalidToken
	}

	username, ok := f.byToken[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return username, nil
}

// Revoke blacklists token; subsequent VerifyToken calls fail with the same
// error shape as an unknown token.
func (f *Facade) Revoke(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[token] = struct{}{}
}
