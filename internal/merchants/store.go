package merchants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inving/dispatch/internal/postgres"
)

// ErrMerchantNotFound is returned for lookup misses.
var ErrMerchantNotFound = errors.New("merchants: merchant not found")

// Store persists merchants.
type Store struct {
	db postgres.DB
}

func NewStore(db postgres.DB) *Store {
	return &Store{db: db}
}

const merchantColumns = `id, name, description, user_id, address, phone, tax, merchant_code, created_at, updated_at, deleted_at`

func scanMerchant(row pgx.Row) (Merchant, error) {
	var m Merchant
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.UserID, &m.Address, &m.Phone, &m.Tax,
		&m.MerchantCode, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt)
	return m, err
}

// CreateParams carries the writable merchant fields. MerchantCode is
// lowercased on write.
type CreateParams struct {
	Name         string
	Description  string
	UserID       uuid.UUID
	Address      *string
	Phone        *string
	Tax          *float64
	MerchantCode string
}

func (s *Store) Create(ctx context.Context, p CreateParams) (Merchant, error) {
	query := `
		INSERT INTO merchants (id, name, description, user_id, address, phone, tax, merchant_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + merchantColumns
	m, err := scanMerchant(s.db.QueryRow(ctx, query,
		uuid.New(), p.Name, p.Description, p.UserID, p.Address, p.Phone, p.Tax,
		strings.ToLower(p.MerchantCode)))
	if err != nil {
		return Merchant{}, fmt.Errorf("merchants: insert: %w", err)
	}
	return m, nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE id = $1 AND deleted_at IS NULL`
	m, err := scanMerchant(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Merchant{}, ErrMerchantNotFound
	}
	if err != nil {
		return Merchant{}, fmt.Errorf("merchants: load by id: %w", err)
	}
	return m, nil
}

// GetByCode resolves the lowercased merchant code typed into the Telegram
// bot.
func (s *Store) GetByCode(ctx context.Context, code string) (Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE merchant_code = $1 AND deleted_at IS NULL`
	m, err := scanMerchant(s.db.QueryRow(ctx, query, strings.ToLower(code)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Merchant{}, ErrMerchantNotFound
	}
	if err != nil {
		return Merchant{}, fmt.Errorf("merchants: load by code: %w", err)
	}
	return m, nil
}

func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("merchants: list by user: %w", err)
	}
	defer rows.Close()

	var out []Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, fmt.Errorf("merchants: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateParams carries the updatable merchant fields.
type UpdateParams struct {
	Name        string
	Description string
	Address     *string
	Phone       *string
	Tax         *float64
}

func (s *Store) Update(ctx context.Context, id, userID uuid.UUID, p UpdateParams) (Merchant, error) {
	query := `
		UPDATE merchants
		SET name = $3, description = $4, address = $5, phone = $6, tax = $7, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING ` + merchantColumns
	m, err := scanMerchant(s.db.QueryRow(ctx, query, id, userID, p.Name, p.Description, p.Address, p.Phone, p.Tax))
	if errors.Is(err, pgx.ErrNoRows) {
		return Merchant{}, ErrMerchantNotFound
	}
	if err != nil {
		return Merchant{}, fmt.Errorf("merchants: update: %w", err)
	}
	return m, nil
}

// SoftDelete stamps deleted_at; rows are never hard-deleted.
func (s *Store) SoftDelete(ctx context.Context, id, userID uuid.UUID) error {
	query := `
		UPDATE merchants
		SET deleted_at = now()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	ct, err := s.db.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("merchants: soft delete: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrMerchantNotFound
	}
	return nil
}
