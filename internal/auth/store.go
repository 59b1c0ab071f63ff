package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inving/dispatch/internal/postgres"
)

// ErrUserNotFound is returned for lookup misses; the HTTP layer reports it
// as 422, not 404.
var ErrUserNotFound = errors.New("auth: user not found")

// ErrTokenNotFound is returned when a bearer token does not resolve.
var ErrTokenNotFound = errors.New("auth: access token not found")

const maxActiveTokens = 2

const tokenTTL = 30 * 24 * time.Hour

// Store persists users and their access tokens.
type Store struct {
	db postgres.DB
}

func NewStore(db postgres.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, name, email, password, status, verified_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Status, &u.VerifiedAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser inserts a user with a pre-hashed password.
func (s *Store) CreateUser(ctx context.Context, name, email, passwordHash string) (User, error) {
	query := `
		INSERT INTO users (id, name, email, password, status)
		VALUES ($1, $2, $3, $4, 'active')
		RETURNING ` + userColumns
	u, err := scanUser(s.db.QueryRow(ctx, query, uuid.New(), name, email, passwordHash))
	if err != nil {
		return User{}, fmt.Errorf("auth: insert user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks up a user by canonicalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND deleted_at IS NULL`
	u, err := scanUser(s.db.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("auth: load user by email: %w", err)
	}
	return u, nil
}

// GetUserByID looks up a user by id.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	u, err := scanUser(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("auth: load user by id: %w", err)
	}
	return u, nil
}

// StampUserVerified records the moment a verification link was followed.
func (s *Store) StampUserVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET verified_at = $2, updated_at = now() WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("auth: stamp user verified: %w", err)
	}
	return nil
}

// IssueToken mints an opaque token for the user, evicting the oldest active
// token when the per-user cap is reached.
func (s *Store) IssueToken(ctx context.Context, userID uuid.UUID, appKey string) (AccessToken, error) {
	var count int
	countQuery := `SELECT count(*) FROM oauth_access_tokens WHERE user_id = $1`
	if err := s.db.QueryRow(ctx, countQuery, userID).Scan(&count); err != nil {
		return AccessToken{}, fmt.Errorf("auth: count tokens: %w", err)
	}

	if count >= maxActiveTokens {
		evictQuery := `
			DELETE FROM oauth_access_tokens
			WHERE access_token = (
				SELECT access_token FROM oauth_access_tokens
				WHERE user_id = $1
				ORDER BY created_at ASC
				LIMIT 1
			)`
		if _, err := s.db.Exec(ctx, evictQuery, userID); err != nil {
			return AccessToken{}, fmt.Errorf("auth: evict oldest token: %w", err)
		}
	}

	token := mintToken(userID, appKey, time.Now())
	expiresAt := time.Now().Add(tokenTTL)

	query := `
		INSERT INTO oauth_access_tokens (access_token, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING access_token, user_id, expires_at, created_at`
	var t AccessToken
	err := s.db.QueryRow(ctx, query, token, userID, expiresAt).
		Scan(&t.AccessToken, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return AccessToken{}, fmt.Errorf("auth: insert token: %w", err)
	}
	return t, nil
}

// LookupToken resolves a bearer token presented by a client.
func (s *Store) LookupToken(ctx context.Context, token string) (AccessToken, error) {
	query := `
		SELECT access_token, user_id, expires_at, created_at
		FROM oauth_access_tokens
		WHERE access_token = $1`
	var t AccessToken
	err := s.db.QueryRow(ctx, query, token).
		Scan(&t.AccessToken, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccessToken{}, ErrTokenNotFound
	}
	if err != nil {
		return AccessToken{}, fmt.Errorf("auth: load token: %w", err)
	}
	return t, nil
}

// mintToken hashes user id, app key and issue time into an opaque 64-char
// hex token.
func mintToken(userID uuid.UUID, appKey string, at time.Time) string {
	payload := fmt.Sprintf("%s/%s/%d/", userID, appKey, at.UnixMilli())
	digest := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(digest[:])
}
