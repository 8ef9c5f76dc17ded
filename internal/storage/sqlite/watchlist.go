package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	shelf "github.com/otakushelf/otakushelf/internal"
)

const itemColumns = `id, user_id, anime_id, anime_title, anime_picture_url, anime_score,
	status, notes, created_at, updated_at`

// AddWatchlistItem inserts an item and sets its ID and timestamps.
// A second item for the same (user, anime) pair returns shelf.ErrConflict.
func (s *Store) AddWatchlistItem(ctx context.Context, item *shelf.WatchlistItem) error {
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	if item.Status == "" {
		item.Status = shelf.StatusPlanToWatch
	}

	result, err := s.write.ExecContext(ctx,
		`INSERT INTO watchlist_items (user_id, anime_id, anime_title, anime_picture_url,
		 anime_score, status, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.UserID, item.AnimeID, item.AnimeTitle, nullStr(item.AnimePictureURL),
		nullFloat(item.AnimeScore), string(item.Status), nullStr(item.Notes),
		timeToStr(item.CreatedAt), timeToStr(item.UpdatedAt),
	)
	if err != nil {
		return conflictErr(err, "watchlist item")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

// GetWatchlistItem retrieves one of the user's items by item ID.
func (s *Store) GetWatchlistItem(ctx context.Context, userID, id int64) (*shelf.WatchlistItem, error) {
	return scanItem(s.read.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM watchlist_items WHERE id = ? AND user_id = ?`, id, userID))
}

// GetWatchlistItemByAnime retrieves the user's item for an anime.
func (s *Store) GetWatchlistItemByAnime(ctx context.Context, userID, animeID int64) (*shelf.WatchlistItem, error) {
	return scanItem(s.read.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM watchlist_items WHERE anime_id = ? AND user_id = ?`, animeID, userID))
}

// ListWatchlist returns one page of the user's items, newest first, and the
// total number of items matching the filter.
func (s *Store) ListWatchlist(ctx context.Context, userID int64, f shelf.WatchlistFilter) ([]*shelf.WatchlistItem, int, error) {
	where := `WHERE user_id = ?`
	args := []any{userID}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(f.Status))
	}

	var total int
	if err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM watchlist_items `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM watchlist_items `+where+
			` ORDER BY id DESC LIMIT ? OFFSET ?`,
		append(args, limit, max(f.Offset, 0))...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]*shelf.WatchlistItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// UpdateWatchlistItem writes the mutable fields of an item and bumps updated_at.
func (s *Store) UpdateWatchlistItem(ctx context.Context, item *shelf.WatchlistItem) error {
	item.UpdatedAt = time.Now().UTC()
	result, err := s.write.ExecContext(ctx,
		`UPDATE watchlist_items SET anime_title=?, anime_picture_url=?, anime_score=?,
		 status=?, notes=?, updated_at=? WHERE id=? AND user_id=?`,
		item.AnimeTitle, nullStr(item.AnimePictureURL), nullFloat(item.AnimeScore),
		string(item.Status), nullStr(item.Notes), timeToStr(item.UpdatedAt),
		item.ID, item.UserID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "watchlist item")
}

// DeleteWatchlistItem removes one of the user's items.
func (s *Store) DeleteWatchlistItem(ctx context.Context, userID, id int64) error {
	result, err := s.write.ExecContext(ctx,
		`DELETE FROM watchlist_items WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "watchlist item")
}

// BulkUpdateStatus sets the status of every listed item the user owns and
// returns how many rows changed. Ids owned by other users are ignored.
func (s *Store) BulkUpdateStatus(ctx context.Context, userID int64, ids []int64, status shelf.WatchStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+3)
	args = append(args, string(status), timeToStr(time.Now()), userID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := s.write.ExecContext(ctx,
		fmt.Sprintf(`UPDATE watchlist_items SET status=?, updated_at=?
		 WHERE user_id=? AND id IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// WatchlistStatusCounts returns the number of the user's items per status.
// Statuses with no items are absent from the map.
func (s *Store) WatchlistStatusCounts(ctx context.Context, userID int64) (map[shelf.WatchStatus]int, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM watchlist_items WHERE user_id = ? GROUP BY status`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[shelf.WatchStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[shelf.WatchStatus(status)] = n
	}
	return out, rows.Err()
}

func scanItem(s scanner) (*shelf.WatchlistItem, error) {
	var item shelf.WatchlistItem
	var picture, notes sql.NullString
	var score sql.NullFloat64
	var status, createdAt, updatedAt string

	err := s.Scan(&item.ID, &item.UserID, &item.AnimeID, &item.AnimeTitle,
		&picture, &score, &status, &notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	item.AnimePictureURL = picture.String
	if score.Valid {
		item.AnimeScore = &score.Float64
	}
	item.Status = shelf.WatchStatus(status)
	item.Notes = notes.String
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	return &item, nil
}
