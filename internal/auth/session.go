// Package auth implements session-token authentication for the backend.
// Access tokens are verified with the identity provider and the resulting
// identities are cached in a W-TinyLFU cache.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	shelf "github.com/otakushelf/otakushelf/internal"
	"github.com/otakushelf/otakushelf/internal/identity"
	"github.com/otakushelf/otakushelf/internal/storage"
)

const (
	defaultCacheTTL = 30 * time.Second // short enough to pick up revocations promptly
	cacheMaxLen     = 10_000           // max concurrent active sessions expected per deployment
)

// SessionVerifier checks an access token with the identity provider.
type SessionVerifier interface {
	VerifySession(ctx context.Context, accessToken string) (*identity.VerifiedSession, error)
}

// SessionAuth authenticates requests carrying a Bearer access token.
type SessionAuth struct {
	verifier SessionVerifier
	users    storage.UserStore
	cache    *otter.Cache[string, *cachedSession]

	mu       sync.Mutex
	byUserID map[int64]map[string]struct{} // user ID -> token hashes, for invalidation
}

type cachedSession struct {
	identity shelf.Identity
	active   bool
}

// NewSessionAuth returns a SessionAuth. A zero ttl uses the default.
func NewSessionAuth(verifier SessionVerifier, users storage.UserStore, ttl time.Duration) (*SessionAuth, error) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c, err := otter.New(&otter.Options[string, *cachedSession]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *cachedSession](ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &SessionAuth{
		verifier: verifier,
		users:    users,
		cache:    c,
		byUserID: make(map[int64]map[string]struct{}),
	}, nil
}

// Authenticate extracts a Bearer token from the Authorization header,
// verifies it and returns the caller's Identity.
func (a *SessionAuth) Authenticate(ctx context.Context, r *http.Request) (*shelf.Identity, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil, shelf.ErrUnauthorized
	}
	hash := hashToken(raw)

	if s, ok := a.cache.GetIfPresent(hash); ok {
		return s.result()
	}

	vs, err := a.verifier.VerifySession(ctx, raw)
	if err != nil {
		if errors.Is(err, identity.ErrSessionInvalid) {
			return nil, shelf.ErrUnauthorized
		}
		return nil, err
	}

	user, err := a.users.GetUserByProviderID(ctx, vs.UserID)
	if err != nil {
		if errors.Is(err, shelf.ErrNotFound) {
			return nil, shelf.ErrUnauthorized
		}
		return nil, err
	}

	s := &cachedSession{
		identity: shelf.Identity{
			UserID:         user.ID,
			ProviderUserID: user.ProviderUserID,
			Username:       user.Username,
			SessionHandle:  vs.Handle,
		},
		active: user.IsActive,
	}
	a.cache.Set(hash, s)
	a.mu.Lock()
	if a.byUserID[user.ID] == nil {
		a.byUserID[user.ID] = make(map[string]struct{})
	}
	a.byUserID[user.ID][hash] = struct{}{}
	a.mu.Unlock()

	return s.result()
}

// InvalidateUser drops every cached session of a user.
// Called after profile changes and deactivation.
func (a *SessionAuth) InvalidateUser(userID int64) {
	a.mu.Lock()
	hashes := a.byUserID[userID]
	delete(a.byUserID, userID)
	a.mu.Unlock()

	for h := range hashes {
		a.cache.Invalidate(h)
	}
}

func (s *cachedSession) result() (*shelf.Identity, error) {
	if !s.active {
		return nil, shelf.ErrUserInactive
	}
	id := s.identity
	return &id, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
