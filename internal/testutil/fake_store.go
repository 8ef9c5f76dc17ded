// Package testutil provides configurable test fakes for backend interfaces.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	shelf "github.com/otakushelf/otakushelf/internal"
	"github.com/otakushelf/otakushelf/internal/storage"
)

var _ storage.Store = (*FakeStore)(nil)

// FakeStore is an in-memory implementation of storage.Store for testing.
// Returned records are copies, as they would be from a real database.
type FakeStore struct {
	mu      sync.RWMutex
	users   map[int64]*shelf.User
	items   map[int64]*shelf.WatchlistItem
	nextID  int64
	pingErr error
}

// NewFakeStore returns a FakeStore with empty collections.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		users: make(map[int64]*shelf.User),
		items: make(map[int64]*shelf.WatchlistItem),
	}
}

// SetPingErr makes Ping return err.
func (s *FakeStore) SetPingErr(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

// Ping returns the configured error, if any.
func (s *FakeStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

// Close is a no-op.
func (s *FakeStore) Close() error { return nil }

// --- UserStore ---

// CreateUser stores a user, enforcing unique provider ID, username and email.
func (s *FakeStore) CreateUser(_ context.Context, u *shelf.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ProviderUserID == u.ProviderUserID || existing.Username == u.Username || existing.Email == u.Email {
			return fmt.Errorf("user: %w", shelf.ErrConflict)
		}
	}
	s.nextID++
	now := time.Now().UTC()
	u.ID = s.nextID
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

// GetUser looks up a user by ID.
func (s *FakeStore) GetUser(_ context.Context, id int64) (*shelf.User, error) {
	return s.findUser(func(u *shelf.User) bool { return u.ID == id })
}

// GetUserByProviderID looks up a user by provider ID.
func (s *FakeStore) GetUserByProviderID(_ context.Context, pid string) (*shelf.User, error) {
	return s.findUser(func(u *shelf.User) bool { return u.ProviderUserID == pid })
}

// GetUserByUsername looks up a user by username.
func (s *FakeStore) GetUserByUsername(_ context.Context, name string) (*shelf.User, error) {
	return s.findUser(func(u *shelf.User) bool { return u.Username == name })
}

// GetUserByEmail looks up a user by email.
func (s *FakeStore) GetUserByEmail(_ context.Context, email string) (*shelf.User, error) {
	return s.findUser(func(u *shelf.User) bool { return u.Email == email })
}

func (s *FakeStore) findUser(match func(*shelf.User) bool) (*shelf.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shelf.ErrNotFound
}

// UpdateUser replaces the mutable fields of a stored user.
func (s *FakeStore) UpdateUser(_ context.Context, u *shelf.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("user: %w", shelf.ErrNotFound)
	}
	for _, other := range s.users {
		if other.ID != u.ID && other.Username == u.Username {
			return fmt.Errorf("user: %w", shelf.ErrConflict)
		}
	}
	u.UpdatedAt = time.Now().UTC()
	existing.Username = u.Username
	existing.FullName = u.FullName
	existing.IsActive = u.IsActive
	existing.UpdatedAt = u.UpdatedAt
	return nil
}

// DeactivateUser marks a user inactive.
func (s *FakeStore) DeactivateUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user: %w", shelf.ErrNotFound)
	}
	u.IsActive = false
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// --- WatchlistStore ---

// AddWatchlistItem stores an item, enforcing one item per (user, anime).
func (s *FakeStore) AddWatchlistItem(_ context.Context, item *shelf.WatchlistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.UserID == item.UserID && existing.AnimeID == item.AnimeID {
			return fmt.Errorf("watchlist item: %w", shelf.ErrConflict)
		}
	}
	if item.Status == "" {
		item.Status = shelf.StatusPlanToWatch
	}
	s.nextID++
	now := time.Now().UTC()
	item.ID = s.nextID
	item.CreatedAt, item.UpdatedAt = now, now
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

// GetWatchlistItem looks up one of the user's items.
func (s *FakeStore) GetWatchlistItem(_ context.Context, userID, id int64) (*shelf.WatchlistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok || item.UserID != userID {
		return nil, shelf.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

// GetWatchlistItemByAnime looks up the user's item for an anime.
func (s *FakeStore) GetWatchlistItemByAnime(_ context.Context, userID, animeID int64) (*shelf.WatchlistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.UserID == userID && item.AnimeID == animeID {
			cp := *item
			return &cp, nil
		}
	}
	return nil, shelf.ErrNotFound
}

// ListWatchlist returns one page of the user's items, newest first.
func (s *FakeStore) ListWatchlist(_ context.Context, userID int64, f shelf.WatchlistFilter) ([]*shelf.WatchlistItem, int, error) {
	s.mu.RLock()
	var matched []*shelf.WatchlistItem
	for _, item := range s.items {
		if item.UserID == userID && (f.Status == "" || item.Status == f.Status) {
			cp := *item
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *shelf.WatchlistItem) int {
		return int(b.ID - a.ID)
	})
	total := len(matched)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	page := make([]*shelf.WatchlistItem, 0, end-start)
	page = append(page, matched[start:end]...)
	return page, total, nil
}

// UpdateWatchlistItem replaces the mutable fields of a stored item.
func (s *FakeStore) UpdateWatchlistItem(_ context.Context, item *shelf.WatchlistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[item.ID]
	if !ok || existing.UserID != item.UserID {
		return fmt.Errorf("watchlist item: %w", shelf.ErrNotFound)
	}
	item.UpdatedAt = time.Now().UTC()
	cp := *item
	cp.CreatedAt = existing.CreatedAt
	s.items[item.ID] = &cp
	return nil
}

// DeleteWatchlistItem removes one of the user's items.
func (s *FakeStore) DeleteWatchlistItem(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.UserID != userID {
		return fmt.Errorf("watchlist item: %w", shelf.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

// BulkUpdateStatus sets the status of the listed items the user owns.
func (s *FakeStore) BulkUpdateStatus(_ context.Context, userID int64, ids []int64, status shelf.WatchStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if item, ok := s.items[id]; ok && item.UserID == userID {
			item.Status = status
			item.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// WatchlistStatusCounts counts the user's items per status.
func (s *FakeStore) WatchlistStatusCounts(_ context.Context, userID int64) (map[shelf.WatchStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[shelf.WatchStatus]int)
	for _, item := range s.items {
		if item.UserID == userID {
			out[item.Status]++
		}
	}
	return out, nil
}
