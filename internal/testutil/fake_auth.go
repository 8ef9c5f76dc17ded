package testutil

import (
	"context"
	"net/http"

	shelf "github.com/otakushelf/otakushelf/internal"
)

// FakeAuth always authenticates as the configured identity.
// The zero value authenticates as user 1 ("tester").
type FakeAuth struct {
	Identity *shelf.Identity
}

// Authenticate returns the configured identity.
func (f FakeAuth) Authenticate(_ context.Context, _ *http.Request) (*shelf.Identity, error) {
	if f.Identity != nil {
		id := *f.Identity
		return &id, nil
	}
	return &shelf.Identity{UserID: 1, ProviderUserID: "st-tester", Username: "tester"}, nil
}

// RejectAuth always rejects authentication.
type RejectAuth struct{}

// Authenticate always returns ErrUnauthorized.
func (RejectAuth) Authenticate(context.Context, *http.Request) (*shelf.Identity, error) {
	return nil, shelf.ErrUnauthorized
}
