package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	shelf "github.com/otakushelf/otakushelf/internal"
)

// maxBody is the maximum allowed request body size (1 MB).
const maxBody = 1 << 20

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(msg, typ string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = typ
	return e
}

// successResponse is the envelope for write endpoints that return a message.
type successResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, shelf.ErrUnauthorized), errors.Is(err, shelf.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, shelf.ErrForbidden), errors.Is(err, shelf.ErrUserInactive):
		return http.StatusForbidden
	case errors.Is(err, shelf.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shelf.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shelf.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, shelf.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, shelf.ErrIdentityProvider):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "authentication_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusConflict:
		return "conflict_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusBadRequest:
		return "invalid_request_error"
	default:
		return "server_error"
	}
}

// writeError maps err to a status. Client errors carry the error text;
// server errors are logged and returned as a generic message so storage
// details do not leak.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		slog.LogAttrs(r.Context(), slog.LevelError, "identity provider error",
			slog.String("error", err.Error()),
			slog.String("request_id", shelf.RequestIDFromContext(r.Context())),
		)
		msg = "identity provider unavailable"
	case status >= http.StatusInternalServerError:
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
			slog.String("request_id", shelf.RequestIDFromContext(r.Context())),
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse(msg, errorType(status)))
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body", "invalid_request_error"))
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter and writes a 400 if it is not one.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid "+name, "invalid_request_error"))
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", shelf.ErrBadRequest, name)
	}
	return n, nil
}

// mustIdentity returns the authenticated caller. Only used behind authenticate.
func mustIdentity(r *http.Request) *shelf.Identity {
	return shelf.IdentityFromContext(r.Context())
}
