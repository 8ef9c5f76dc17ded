package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	shelf "github.com/otakushelf/otakushelf/internal"
	"github.com/otakushelf/otakushelf/internal/app"
)

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionTokens struct {
	AccessToken   string    `json:"access_token"`
	AccessExpiry  time.Time `json:"access_token_expires_at"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	RefreshExpiry time.Time `json:"refresh_token_expires_at,omitzero"`
	TokenType     string    `json:"token_type"`
}

type signinResponse struct {
	User    *shelf.User   `json:"user"`
	Session sessionTokens `json:"session"`
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req app.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.deps.Users.Signup(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.Users.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signinResponse{
		User: res.User,
		Session: sessionTokens{
			AccessToken:   res.Session.AccessToken,
			AccessExpiry:  res.Session.AccessExpiry,
			RefreshToken:  res.Session.RefreshToken,
			RefreshExpiry: res.Session.RefreshExpiry,
			TokenType:     "Bearer",
		},
	})
}

func (s *server) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	available, err := s.deps.Users.UsernameAvailable(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":  username,
		"available": available,
	})
}

func (s *server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Users.Profile(r.Context(), mustIdentity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var upd shelf.UserUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	u, err := s.deps.Users.UpdateProfile(r.Context(), mustIdentity(r).UserID, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Users.Deactivate(r.Context(), mustIdentity(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Message: "account deactivated"})
}
