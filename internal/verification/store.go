package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inving/dispatch/internal/postgres"
)

var ErrVerificationNotFound = errors.New("verification: not found")

// Store persists verification rows.
type Store struct {
	db postgres.DB
}

func NewStore(db postgres.DB) *Store {
	return &Store{db: db}
}

const verificationColumns = `id, user_id, customer_id, code, status, expired_at, created_at, updated_at`

// Create inserts a pending verification expiring after the code TTL.
func (s *Store) Create(ctx context.Context, userID, customerID *uuid.UUID, code string, now time.Time) (Verification, error) {
	var v Verification
	err := s.db.QueryRow(ctx, `
		INSERT INTO verifications (user_id, customer_id, code, status, expired_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+verificationColumns,
		userID, customerID, code, StatusPending, now.Add(codeTTL),
	).Scan(&v.ID, &v.UserID, &v.CustomerID, &v.Code, &v.Status,
		&v.ExpiredAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return Verification{}, fmt.Errorf("verification: create: %w", err)
	}
	return v, nil
}

// GetByID loads a verification row.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (Verification, error) {
	var v Verification
	err := s.db.QueryRow(ctx, `
		SELECT `+verificationColumns+`
		FROM verifications
		WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.UserID, &v.CustomerID, &v.Code, &v.Status,
		&v.ExpiredAt, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Verification{}, ErrVerificationNotFound
	}
	if err != nil {
		return Verification{}, fmt.Errorf("verification: get by id: %w", err)
	}
	return v, nil
}

// UpdateStatus moves a pending row to the given status. Rows already out of
// pending are left untouched.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE verifications
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		status, id, StatusPending)
	if err != nil {
		return fmt.Errorf("verification: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVerificationNotFound
	}
	return nil
}
