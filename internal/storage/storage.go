// Package storage defines persistence interfaces for the backend.
package storage

import (
	"context"

	shelf "github.com/otakushelf/otakushelf/internal"
)

// UserStore manages local user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *shelf.User) error
	GetUser(ctx context.Context, id int64) (*shelf.User, error)
	GetUserByProviderID(ctx context.Context, providerUserID string) (*shelf.User, error)
	GetUserByUsername(ctx context.Context, username string) (*shelf.User, error)
	GetUserByEmail(ctx context.Context, email string) (*shelf.User, error)
	UpdateUser(ctx context.Context, u *shelf.User) error
	DeactivateUser(ctx context.Context, id int64) error
}

// WatchlistStore manages watchlist items. Every call is scoped to one user.
type WatchlistStore interface {
	AddWatchlistItem(ctx context.Context, item *shelf.WatchlistItem) error
	GetWatchlistItem(ctx context.Context, userID, id int64) (*shelf.WatchlistItem, error)
	GetWatchlistItemByAnime(ctx context.Context, userID, animeID int64) (*shelf.WatchlistItem, error)
	ListWatchlist(ctx context.Context, userID int64, f shelf.WatchlistFilter) ([]*shelf.WatchlistItem, int, error)
	UpdateWatchlistItem(ctx context.Context, item *shelf.WatchlistItem) error
	DeleteWatchlistItem(ctx context.Context, userID, id int64) error
	BulkUpdateStatus(ctx context.Context, userID int64, ids []int64, status shelf.WatchStatus) (int, error)
	WatchlistStatusCounts(ctx context.Context, userID int64) (map[shelf.WatchStatus]int, error)
}

// Store combines all storage interfaces.
type Store interface {
	UserStore
	WatchlistStore
	Ping(ctx context.Context) error
	Close() error
}
