package server

import (
	"net/http"

	shelf "github.com/otakushelf/otakushelf/internal"
	"github.com/otakushelf/otakushelf/internal/app"
)

type addItemRequest struct {
	AnimeID         int64             `json:"anime_id"`
	AnimeTitle      string            `json:"anime_title"`
	AnimePictureURL string            `json:"anime_picture_url"`
	AnimeScore      *float64          `json:"anime_score"`
	Status          shelf.WatchStatus `json:"status"`
	Notes           string            `json:"notes"`
}

type bulkUpdateRequest struct {
	ItemIDs []int64           `json:"item_ids"`
	Status  shelf.WatchStatus `json:"status"`
}

type bulkUpdateResponse struct {
	Message      string `json:"message"`
	UpdatedCount int    `json:"updated_count"`
}

func (s *server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := s.deps.Watchlist.Add(r.Context(), mustIdentity(r).UserID, &shelf.WatchlistItem{
		AnimeID:         req.AnimeID,
		AnimeTitle:      req.AnimeTitle,
		AnimePictureURL: req.AnimePictureURL,
		AnimeScore:      req.AnimeScore,
		Status:          req.Status,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleListWatchlist serves GET /watchlist?status=&skip=&limit=.
func (s *server) handleListWatchlist(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", app.DefaultPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.deps.Watchlist.List(r.Context(), mustIdentity(r).UserID, shelf.WatchlistFilter{
		Status: shelf.WatchStatus(r.URL.Query().Get("status")),
		Offset: skip,
		Limit:  limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if page.Items == nil {
		page.Items = []*shelf.WatchlistItem{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) handleWatchlistStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Watchlist.Stats(r.Context(), mustIdentity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := s.deps.Watchlist.BulkUpdateStatus(r.Context(), mustIdentity(r).UserID, req.ItemIDs, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkUpdateResponse{
		Message:      "watchlist items updated",
		UpdatedCount: n,
	})
}

func (s *server) handleGetByAnime(w http.ResponseWriter, r *http.Request) {
	animeID, ok := pathID(w, r, "animeID")
	if !ok {
		return
	}
	item, err := s.deps.Watchlist.GetByAnime(r.Context(), mustIdentity(r).UserID, animeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := s.deps.Watchlist.Get(r.Context(), mustIdentity(r).UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var upd shelf.WatchlistUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	item, err := s.deps.Watchlist.Update(r.Context(), mustIdentity(r).UserID, id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.deps.Watchlist.Remove(r.Context(), mustIdentity(r).UserID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Message: "watchlist item removed"})
}
