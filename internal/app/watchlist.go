package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	shelf "github.com/otakushelf/otakushelf/internal"
	"github.com/otakushelf/otakushelf/internal/cache"
	"github.com/otakushelf/otakushelf/internal/storage"
)

const (
	defaultListTTL  = 2 * time.Minute
	DefaultPageSize = 20
	MaxPageSize     = 100
	maxBulkItems    = 100
)

// WatchlistStats summarizes a user's watchlist.
type WatchlistStats struct {
	TotalCount     int                       `json:"total_count"`
	StatusCounts   map[shelf.WatchStatus]int `json:"status_counts"`
	CompletionRate float64                   `json:"completion_rate"` // percent completed, one decimal
}

// WatchlistService manages watchlist items and their cached views.
type WatchlistService struct {
	items   storage.WatchlistStore
	cache   *cache.Cache
	listTTL time.Duration
}

// NewWatchlistService returns a WatchlistService. A zero ttl uses the default.
func NewWatchlistService(items storage.WatchlistStore, c *cache.Cache, listTTL time.Duration) *WatchlistService {
	if listTTL <= 0 {
		listTTL = defaultListTTL
	}
	return &WatchlistService{items: items, cache: c, listTTL: listTTL}
}

// Add puts an anime on the user's watchlist. Adding the same anime twice
// returns shelf.ErrConflict.
func (s *WatchlistService) Add(ctx context.Context, userID int64, item *shelf.WatchlistItem) (*shelf.WatchlistItem, error) {
	if err := validateNewItem(item); err != nil {
		return nil, err
	}
	item.UserID = userID
	if err := s.items.AddWatchlistItem(ctx, item); err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	slog.LogAttrs(ctx, slog.LevelInfo, "watchlist item added",
		slog.Int64("user_id", userID),
		slog.Int64("anime_id", item.AnimeID),
	)
	return item, nil
}

// Get returns one of the user's items.
func (s *WatchlistService) Get(ctx context.Context, userID, id int64) (*shelf.WatchlistItem, error) {
	return s.items.GetWatchlistItem(ctx, userID, id)
}

// GetByAnime returns the user's item for an anime.
func (s *WatchlistService) GetByAnime(ctx context.Context, userID, animeID int64) (*shelf.WatchlistItem, error) {
	return s.items.GetWatchlistItemByAnime(ctx, userID, animeID)
}

// List returns a page of the user's watchlist with totals. The first page at
// the default size is cached per (user, status).
func (s *WatchlistService) List(ctx context.Context, userID int64, f shelf.WatchlistFilter) (*shelf.WatchlistPage, error) {
	ctx, span := tracer.Start(ctx, "WatchlistService.List")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("watchlist.status", string(f.Status)),
	)

	if f.Status != "" {
		if err := validateStatus(f.Status); err != nil {
			return nil, err
		}
	}
	if f.Offset < 0 {
		return nil, invalid("offset must not be negative")
	}
	switch {
	case f.Limit == 0:
		f.Limit = DefaultPageSize
	case f.Limit < 0 || f.Limit > MaxPageSize:
		return nil, invalid("limit must be between 1 and %d", MaxPageSize)
	}

	load := func(ctx context.Context) (shelf.WatchlistPage, error) {
		items, total, err := s.items.ListWatchlist(ctx, userID, f)
		if err != nil {
			return shelf.WatchlistPage{}, err
		}
		stats, err := s.Stats(ctx, userID)
		if err != nil {
			return shelf.WatchlistPage{}, err
		}
		return shelf.WatchlistPage{Items: items, TotalCount: total, StatusCounts: stats.StatusCounts}, nil
	}

	var page shelf.WatchlistPage
	var err error
	if f.Offset == 0 && f.Limit == DefaultPageSize {
		page, err = cache.Load(ctx, s.cache, cache.WatchlistKey(userID, string(f.Status)), s.listTTL, load)
	} else {
		page, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// Stats returns per-status counts for the user's watchlist, served from cache
// when possible.
func (s *WatchlistService) Stats(ctx context.Context, userID int64) (*WatchlistStats, error) {
	ctx, span := tracer.Start(ctx, "WatchlistService.Stats")
	defer span.End()

	stats, err := cache.Load(ctx, s.cache, cache.WatchlistStatsKey(userID), s.listTTL,
		func(ctx context.Context) (WatchlistStats, error) {
			counts, err := s.items.WatchlistStatusCounts(ctx, userID)
			if err != nil {
				return WatchlistStats{}, err
			}
			return newWatchlistStats(counts), nil
		})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Update applies a partial update to one of the user's items.
func (s *WatchlistService) Update(ctx context.Context, userID, id int64, upd shelf.WatchlistUpdate) (*shelf.WatchlistItem, error) {
	if err := validateItemUpdate(upd); err != nil {
		return nil, err
	}
	item, err := s.items.GetWatchlistItem(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if upd.AnimeTitle != nil {
		item.AnimeTitle = *upd.AnimeTitle
	}
	if upd.AnimePictureURL != nil {
		item.AnimePictureURL = *upd.AnimePictureURL
	}
	if upd.AnimeScore != nil {
		item.AnimeScore = upd.AnimeScore
	}
	if upd.Status != nil {
		item.Status = *upd.Status
	}
	if upd.Notes != nil {
		item.Notes = *upd.Notes
	}

	if err := s.items.UpdateWatchlistItem(ctx, item); err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return item, nil
}

// Remove deletes one of the user's items.
func (s *WatchlistService) Remove(ctx context.Context, userID, id int64) error {
	if err := s.items.DeleteWatchlistItem(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// BulkUpdateStatus sets the status of several items at once and returns how
// many changed. If none of the ids belong to the user, it returns shelf.ErrNotFound.
func (s *WatchlistService) BulkUpdateStatus(ctx context.Context, userID int64, ids []int64, status shelf.WatchStatus) (int, error) {
	if err := validateStatus(status); err != nil {
		return 0, err
	}
	if len(ids) == 0 || len(ids) > maxBulkItems {
		return 0, invalid("item_ids must contain 1-%d ids", maxBulkItems)
	}

	n, err := s.items.BulkUpdateStatus(ctx, userID, ids, status)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("watchlist items: %w", shelf.ErrNotFound)
	}
	s.invalidate(ctx, userID)
	slog.LogAttrs(ctx, slog.LevelInfo, "watchlist items updated",
		slog.Int64("user_id", userID),
		slog.Int("count", n),
		slog.String("status", string(status)),
	)
	return n, nil
}

// invalidate drops every cached view derived from the user's watchlist,
// including the profile, which carries the item count.
func (s *WatchlistService) invalidate(ctx context.Context, userID int64) {
	s.cache.Delete(ctx, cache.WatchlistKey(userID, ""))
	for _, st := range shelf.WatchStatuses {
		s.cache.Delete(ctx, cache.WatchlistKey(userID, string(st)))
	}
	s.cache.Delete(ctx, cache.WatchlistStatsKey(userID))
	s.cache.Delete(ctx, cache.UserProfileKey(userID))
}

func newWatchlistStats(counts map[shelf.WatchStatus]int) WatchlistStats {
	total := 0
	for _, n := range counts {
		total += n
	}
	st := WatchlistStats{TotalCount: total, StatusCounts: counts}
	if total > 0 {
		rate := float64(counts[shelf.StatusCompleted]) / float64(total) * 100
		st.CompletionRate = math.Round(rate*10) / 10
	}
	return st
}
