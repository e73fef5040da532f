package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

// UserRepository persists [models.User] records.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Insert stores a new user. The caller supplies the id (accounts are created
// externally, e.g. by the auth provider).
func (r *UserRepository) Insert(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, display_name, refresh_token, token_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.RefreshToken,
		nullTime(user.TokenExpiresAt),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// Get retrieves a user by ID. Returns an error wrapping [shared.ErrNotFound]
// when no such user exists.
func (r *UserRepository) Get(id string) (*models.User, error) {
	query := `
		SELECT id, email, display_name, refresh_token, token_expires_at, created_at, updated_at
		FROM users
		WHERE id = ?
	`

	var (
		user      models.User
		name      sql.NullString
		token     sql.NullString
		expiresAt sql.NullTime
	)

	err := r.db.QueryRow(query, id).Scan(
		&user.ID, &user.Email, &name, &token, &expiresAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user.DisplayName = name.String
	if token.Valid {
		user.RefreshToken = &token.String
	}
	user.TokenExpiresAt = timePtr(expiresAt)

	return &user, nil
}

// Update modifies an existing user's profile fields.
func (r *UserRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	user.UpdatedAt = now

	query := `
		UPDATE users
		SET email = ?, display_name = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, user.Email, user.DisplayName, now, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user %s", shared.ErrNotFound, user.ID)
	}

	return nil
}

// RefreshToken returns the user's stored OAuth refresh token, empty when the
// user never completed the OAuth flow. Satisfies services.CredentialStore.
func (r *UserRepository) RefreshToken(id string) (string, error) {
	user, err := r.Get(id)
	if err != nil {
		return "", err
	}
	if user.RefreshToken == nil {
		return "", nil
	}
	return *user.RefreshToken, nil
}

// StoreToken persists a rotated refresh token. Satisfies services.CredentialStore.
func (r *UserRepository) StoreToken(id, refreshToken string, expiresAt time.Time) error {
	return r.UpdateToken(id, refreshToken, expiresAt)
}

// UpdateToken persists a refreshed OAuth token pair. Called by the video
// provider after a credential refresh so the next run reuses it.
func (r *UserRepository) UpdateToken(id, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET refresh_token = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, refreshToken, expiresAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}

	return nil
}
