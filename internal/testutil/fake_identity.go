package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	shelf "github.com/otakushelf/otakushelf/internal"
	"github.com/otakushelf/otakushelf/internal/identity"
)

// FakeIdentity is an in-memory identity provider for service and handler tests.
type FakeIdentity struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount // email -> account
	sessions map[string]string      // access token -> provider user ID
	next     int
	Err      error // returned by every call when set
}

type fakeAccount struct {
	userID   string
	password string
}

// NewFakeIdentity returns an empty FakeIdentity.
func NewFakeIdentity() *FakeIdentity {
	return &FakeIdentity{
		accounts: make(map[string]fakeAccount),
		sessions: make(map[string]string),
	}
}

// SignUp registers an account.
func (f *FakeIdentity) SignUp(_ context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if _, ok := f.accounts[email]; ok {
		return "", identity.ErrEmailExists
	}
	f.next++
	id := fmt.Sprintf("st-%d", f.next)
	f.accounts[email] = fakeAccount{userID: id, password: password}
	return id, nil
}

// SignIn checks credentials.
func (f *FakeIdentity) SignIn(_ context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	acct, ok := f.accounts[email]
	if !ok || acct.password != password {
		return "", shelf.ErrInvalidCredentials
	}
	return acct.userID, nil
}

// CreateSession issues an access token for userID.
func (f *FakeIdentity) CreateSession(_ context.Context, userID string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.next++
	token := fmt.Sprintf("access-%d", f.next)
	f.sessions[token] = userID
	return &identity.Session{
		Handle:       fmt.Sprintf("handle-%d", f.next),
		UserID:       userID,
		AccessToken:  token,
		AccessExpiry: time.Now().Add(time.Hour),
	}, nil
}

// VerifySession resolves a token issued by CreateSession.
func (f *FakeIdentity) VerifySession(_ context.Context, token string) (*identity.VerifiedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	uid, ok := f.sessions[token]
	if !ok {
		return nil, identity.ErrSessionInvalid
	}
	return &identity.VerifiedSession{Handle: "handle-" + token, UserID: uid}, nil
}
