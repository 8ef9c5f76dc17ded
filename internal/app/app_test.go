package app

import (
	"context"
	"testing"

	"github.com/otakushelf/otakushelf/internal/cache"
	"github.com/otakushelf/otakushelf/internal/testutil"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(context.Background(), cache.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

type invalidations struct{ users []int64 }

func (i *invalidations) InvalidateUser(id int64) { i.users = append(i.users, id) }

func newUserService(t *testing.T) (*UserService, *testutil.FakeStore, *testutil.FakeIdentity, *invalidations) {
	t.Helper()
	store := testutil.NewFakeStore()
	idp := testutil.NewFakeIdentity()
	inv := &invalidations{}
	svc := NewUserService(store, idp, newTestCache(t), UserOptions{Sessions: inv})
	return svc, store, idp, inv
}

func newWatchlistService(t *testing.T) (*WatchlistService, *testutil.FakeStore) {
	t.Helper()
	store := testutil.NewFakeStore()
	return NewWatchlistService(store, newTestCache(t), 0), store
}
