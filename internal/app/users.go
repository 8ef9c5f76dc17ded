// Package app implements application-level services for the OtakuShelf backend.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	shelf "github.com/otakushelf/otakushelf/internal"
	"github.com/otakushelf/otakushelf/internal/cache"
	"github.com/otakushelf/otakushelf/internal/identity"
	"github.com/otakushelf/otakushelf/internal/storage"
	"github.com/otakushelf/otakushelf/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/otakushelf/otakushelf/internal/app")

const defaultProfileTTL = 10 * time.Minute

// IdentityProvider is the subset of the identity client the user service needs.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (string, error)
	CreateSession(ctx context.Context, userID string) (*identity.Session, error)
}

// SessionInvalidator drops cached sessions of a user.
type SessionInvalidator interface {
	InvalidateUser(userID int64)
}

// SignupRequest is the input to UserService.Signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
}

// SigninResult is a signed-in user and the session issued for it.
type SigninResult struct {
	User    *shelf.User
	Session *identity.Session
}

// Profile is the cached view of a user returned by GET /users/me.
type Profile struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name,omitempty"`
	DisplayName    string    `json:"display_name"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	WatchlistCount int       `json:"watchlist_count"`
}

// UserOptions configures a UserService.
type UserOptions struct {
	ProfileTTL time.Duration      // zero uses the default
	Sessions   SessionInvalidator // optional
}

// UserService handles signup, signin and profile management.
type UserService struct {
	store      storage.Store
	idp        IdentityProvider
	cache      *cache.Cache
	profileTTL time.Duration
	sessions   SessionInvalidator
}

// NewUserService returns a UserService.
func NewUserService(store storage.Store, idp IdentityProvider, c *cache.Cache, opts UserOptions) *UserService {
	ttl := opts.ProfileTTL
	if ttl <= 0 {
		ttl = defaultProfileTTL
	}
	return &UserService{store: store, idp: idp, cache: c, profileTTL: ttl, sessions: opts.Sessions}
}

// Signup registers the user with the identity provider and creates the local
// profile. Username and email must both be unused.
func (s *UserService) Signup(ctx context.Context, req SignupRequest) (*shelf.User, error) {
	ctx, span := tracer.Start(ctx, "UserService.Signup")
	defer span.End()

	req.FullName = strings.TrimSpace(req.FullName)
	for _, err := range []error{
		validateEmail(req.Email),
		validatePassword(req.Password),
		validateUsername(req.Username),
		validateFullName(req.FullName),
	} {
		if err != nil {
			return nil, err
		}
	}

	available, err := s.UsernameAvailable(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("%w: username %q is already taken", shelf.ErrConflict, req.Username)
	}
	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("%w: email is already registered", shelf.ErrConflict)
	} else if !errors.Is(err, shelf.ErrNotFound) {
		return nil, err
	}

	providerID, err := s.idp.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailExists) {
			return nil, fmt.Errorf("%w: email is already registered", shelf.ErrConflict)
		}
		return nil, err
	}

	u := &shelf.User{
		ProviderUserID: providerID,
		Username:       req.Username,
		Email:          req.Email,
		FullName:       req.FullName,
		IsActive:       true,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "create local profile failed",
			slog.String("provider_user_id", providerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("create user profile: %w", err)
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID))
	slog.LogAttrs(ctx, slog.LevelInfo, "user signed up",
		slog.Int64("user_id", u.ID),
		slog.String("username", u.Username),
	)
	return u, nil
}

// Signin checks credentials with the identity provider and starts a session.
func (s *UserService) Signin(ctx context.Context, email, password string) (*SigninResult, error) {
	ctx, span := tracer.Start(ctx, "UserService.Signin")
	defer span.End()

	if email == "" || password == "" {
		return nil, invalid("email and password are required")
	}
	providerID, err := s.idp.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	u, err := s.store.GetUserByProviderID(ctx, providerID)
	if err != nil {
		if errors.Is(err, shelf.ErrNotFound) {
			return nil, fmt.Errorf("user profile: %w", shelf.ErrNotFound)
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, shelf.ErrUserInactive
	}

	sess, err := s.idp.CreateSession(ctx, providerID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID))
	return &SigninResult{User: u, Session: sess}, nil
}

// Profile returns the user's profile, served from cache when possible.
func (s *UserService) Profile(ctx context.Context, userID int64) (*Profile, error) {
	ctx, span := tracer.Start(ctx, "UserService.Profile")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	p, err := cache.Load(ctx, s.cache, cache.UserProfileKey(userID), s.profileTTL,
		func(ctx context.Context) (Profile, error) {
			u, err := s.store.GetUser(ctx, userID)
			if err != nil {
				return Profile{}, err
			}
			counts, err := s.store.WatchlistStatusCounts(ctx, userID)
			if err != nil {
				return Profile{}, err
			}
			total := 0
			for _, n := range counts {
				total += n
			}
			return Profile{
				ID:             u.ID,
				Username:       u.Username,
				Email:          u.Email,
				FullName:       u.FullName,
				DisplayName:    u.DisplayName(),
				IsActive:       u.IsActive,
				CreatedAt:      u.CreatedAt,
				WatchlistCount: total,
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile applies a partial update and invalidates the cached profile.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, upd shelf.UserUpdate) (*shelf.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.Username != nil && *upd.Username != u.Username {
		if err := validateUsername(*upd.Username); err != nil {
			return nil, err
		}
		available, err := s.UsernameAvailable(ctx, *upd.Username)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, fmt.Errorf("%w: username %q is already taken", shelf.ErrConflict, *upd.Username)
		}
		u.Username = *upd.Username
	}
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if err := validateFullName(name); err != nil {
			return nil, err
		}
		u.FullName = name
	}

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.forget(ctx, userID)
	return u, nil
}

// Deactivate marks the account inactive. Existing sessions stop working.
func (s *UserService) Deactivate(ctx context.Context, userID int64) error {
	if err := s.store.DeactivateUser(ctx, userID); err != nil {
		return err
	}
	s.forget(ctx, userID)
	slog.LogAttrs(ctx, slog.LevelInfo, "user deactivated", slog.Int64("user_id", userID))
	return nil
}

// UsernameAvailable reports whether no local user has the username.
func (s *UserService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	if err := validateUsername(username); err != nil {
		return false, err
	}
	_, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, shelf.ErrNotFound):
		return true, nil
	default:
		return false, err
	}
}

func (s *UserService) forget(ctx context.Context, userID int64) {
	s.cache.Delete(ctx, cache.UserProfileKey(userID))
	if s.sessions != nil {
		s.sessions.InvalidateUser(userID)
	}
}
