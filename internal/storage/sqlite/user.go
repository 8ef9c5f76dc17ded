package sqlite

import (
	"context"
	"database/sql"
	"time"

	shelf "github.com/otakushelf/otakushelf/internal"
)

const userColumns = `id, provider_user_id, username, email, full_name, is_active, created_at, updated_at`

// CreateUser inserts a user and sets its ID and timestamps.
// Duplicate provider ids, usernames or emails return shelf.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *shelf.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	result, err := s.write.ExecContext(ctx,
		`INSERT INTO users (provider_user_id, username, email, full_name, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ProviderUserID, u.Username, u.Email, nullStr(u.FullName),
		boolToInt(u.IsActive), timeToStr(u.CreatedAt), timeToStr(u.UpdatedAt),
	)
	if err != nil {
		return conflictErr(err, "user")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// GetUser retrieves a user by local ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*shelf.User, error) {
	return scanUser(s.read.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByProviderID retrieves a user by identity-provider user ID.
func (s *Store) GetUserByProviderID(ctx context.Context, providerUserID string) (*shelf.User, error) {
	return scanUser(s.read.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider_user_id = ?`, providerUserID))
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*shelf.User, error) {
	return scanUser(s.read.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*shelf.User, error) {
	return scanUser(s.read.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// UpdateUser writes the mutable profile fields and bumps updated_at.
func (s *Store) UpdateUser(ctx context.Context, u *shelf.User) error {
	u.UpdatedAt = time.Now().UTC()
	result, err := s.write.ExecContext(ctx,
		`UPDATE users SET username=?, full_name=?, is_active=?, updated_at=? WHERE id=?`,
		u.Username, nullStr(u.FullName), boolToInt(u.IsActive), timeToStr(u.UpdatedAt), u.ID,
	)
	if err != nil {
		return conflictErr(err, "user")
	}
	return checkRowsAffected(result, "user")
}

// DeactivateUser marks a user inactive. The row and its watchlist are kept.
func (s *Store) DeactivateUser(ctx context.Context, id int64) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE users SET is_active=0, updated_at=? WHERE id=?`,
		timeToStr(time.Now()), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "user")
}

func scanUser(s scanner) (*shelf.User, error) {
	var u shelf.User
	var fullName sql.NullString
	var active int
	var createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.ProviderUserID, &u.Username, &u.Email,
		&fullName, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	u.FullName = fullName.String
	u.IsActive = active != 0
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}
