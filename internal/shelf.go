// Package shelf defines domain types and interfaces for the OtakuShelf backend.
// This package has no project imports -- it is the dependency root.
package shelf

import (
	"context"
	"net/http"
	"time"
)

// --- Users ---

// User is a local account linked to an identity-provider user.
type User struct {
	ID             int64     `json:"id"`
	ProviderUserID string    `json:"-"` // identity-provider user id, never exposed
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserUpdate carries a partial profile update. Nil fields are left unchanged.
type UserUpdate struct {
	Username *string `json:"username,omitempty"`
	FullName *string `json:"full_name,omitempty"`
}

// DisplayName is the full name when set, otherwise the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// --- Watchlist ---

// WatchStatus is the viewing state of a watchlist item.
type WatchStatus string

const (
	StatusPlanToWatch WatchStatus = "plan_to_watch"
	StatusWatching    WatchStatus = "watching"
	StatusCompleted   WatchStatus = "completed"
	StatusOnHold      WatchStatus = "on_hold"
	StatusDropped     WatchStatus = "dropped"
)

// WatchStatuses lists every valid status in display order.
var WatchStatuses = []WatchStatus{
	StatusPlanToWatch,
	StatusWatching,
	StatusCompleted,
	StatusOnHold,
	StatusDropped,
}

// Valid reports whether s is a known status.
func (s WatchStatus) Valid() bool {
	for _, v := range WatchStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// WatchlistItem is a single anime on a user's watchlist.
type WatchlistItem struct {
	ID              int64       `json:"id"`
	UserID          int64       `json:"user_id"`
	AnimeID         int64       `json:"anime_id"`
	AnimeTitle      string      `json:"anime_title"`
	AnimePictureURL string      `json:"anime_picture_url,omitempty"`
	AnimeScore      *float64    `json:"anime_score,omitempty"`
	Status          WatchStatus `json:"status"`
	Notes           string      `json:"notes,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// WatchlistUpdate carries a partial item update. Nil fields are left unchanged.
type WatchlistUpdate struct {
	AnimeTitle      *string      `json:"anime_title,omitempty"`
	AnimePictureURL *string      `json:"anime_picture_url,omitempty"`
	AnimeScore      *float64     `json:"anime_score,omitempty"`
	Status          *WatchStatus `json:"status,omitempty"`
	Notes           *string      `json:"notes,omitempty"`
}

// WatchlistFilter selects a page of a user's watchlist.
type WatchlistFilter struct {
	Status WatchStatus // empty = all statuses
	Offset int
	Limit  int
}

// WatchlistPage is one page of watchlist items plus totals.
type WatchlistPage struct {
	Items        []*WatchlistItem    `json:"items"`
	TotalCount   int                 `json:"total_count"`
	StatusCounts map[WatchStatus]int `json:"status_counts"`
}

// --- Identity ---

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID         int64  `json:"user_id"`
	ProviderUserID string `json:"provider_user_id"`
	Username       string `json:"username"`
	SessionHandle  string `json:"-"`
}

// Authenticator validates request credentials and returns the caller identity.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// Identity is filled in later by the authenticate middleware via mutation.
type requestMeta struct {
	RequestID string
	Identity  *Identity
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// IdentityFromContext extracts the authenticated identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	if m := metaFromContext(ctx); m != nil {
		return m.Identity
	}
	return nil
}

// ContextWithIdentity stores the identity in the existing requestMeta if present.
// Falls back to creating new metadata if none exists (e.g., in tests).
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Identity = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Identity: id})
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}
