package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inving/dispatch/internal/postgres"
)

var (
	ErrCustomerNotFound = errors.New("customers: customer not found")
	ErrChannelNotFound  = errors.New("customers: contact channel not found")
	ErrContactNotFound  = errors.New("customers: contact not found")
)

// Store persists customers and their contact channels.
type Store struct {
	db postgres.DB
}

func NewStore(db postgres.DB) *Store {
	return &Store{db: db}
}

const customerColumns = `id, name, merchant_id, tags, verified_at, created_at, updated_at, deleted_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.MerchantID, &c.Tags, &c.VerifiedAt,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	return c, err
}

// CreateWithContact inserts a customer and its first contact channel binding
// in one transaction. Whatsapp values are canonicalized before the write.
func (s *Store) CreateWithContact(ctx context.Context, c *Customer, channelName, value string) (CustomerContactChannel, error) {
	channel, err := s.GetChannelByName(ctx, channelName)
	if err != nil {
		return CustomerContactChannel{}, err
	}
	if channel.Name == "whatsapp" {
		value = CanonicalPhone(value)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return CustomerContactChannel{}, fmt.Errorf("customers: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO customers (name, merchant_id, tags)
		VALUES ($1, $2, $3)
		RETURNING `+customerColumns,
		c.Name, c.MerchantID, c.Tags,
	).Scan(&c.ID, &c.Name, &c.MerchantID, &c.Tags, &c.VerifiedAt,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return CustomerContactChannel{}, fmt.Errorf("customers: insert customer: %w", err)
	}

	var contact CustomerContactChannel
	err = tx.QueryRow(ctx, `
		INSERT INTO customer_contact_channels (customer_id, contact_channel_id, value)
		VALUES ($1, $2, $3)
		RETURNING id, customer_id, contact_channel_id, value, additional_value, created_at, updated_at`,
		c.ID, channel.ID, value,
	).Scan(&contact.ID, &contact.CustomerID, &contact.ContactChannelID,
		&contact.Value, &contact.AdditionalValue, &contact.CreatedAt, &contact.UpdatedAt)
	if err != nil {
		return CustomerContactChannel{}, fmt.Errorf("customers: insert contact: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return CustomerContactChannel{}, fmt.Errorf("customers: commit create: %w", err)
	}
	return contact, nil
}

// GetByID loads a live customer scoped to a merchant.
func (s *Store) GetByID(ctx context.Context, merchantID, id uuid.UUID) (Customer, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1 AND merchant_id = $2 AND deleted_at IS NULL`,
		id, merchantID)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("customers: get by id: %w", err)
	}
	return c, nil
}

// GetByIDOnly loads a customer without a merchant scope. The dispatcher uses
// it when the merchant is already fixed by the schedule row.
func (s *Store) GetByIDOnly(ctx context.Context, id uuid.UUID) (Customer, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1 AND deleted_at IS NULL`,
		id)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("customers: get by id only: %w", err)
	}
	return c, nil
}

// ListByMerchant returns customers joined with their contact channels. When
// tags is non-empty only customers carrying every given tag are returned.
func (s *Store) ListByMerchant(ctx context.Context, merchantID uuid.UUID, tags []string) ([]CustomerWithContact, error) {
	query := `
		SELECT c.id, c.name, c.merchant_id, c.tags, c.verified_at,
		       c.created_at, c.updated_at, c.deleted_at,
		       cc.id, cc.name, ccc.value, ccc.id
		FROM customers c
		JOIN customer_contact_channels ccc ON ccc.customer_id = c.id
		JOIN contact_channels cc ON cc.id = ccc.contact_channel_id
		WHERE c.merchant_id = $1 AND c.deleted_at IS NULL`
	args := []any{merchantID}
	if len(tags) > 0 {
		query += ` AND c.tags @> $2`
		args = append(args, tags)
	}
	query += ` ORDER BY c.created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("customers: list by merchant: %w", err)
	}
	defer rows.Close()

	var out []CustomerWithContact
	for rows.Next() {
		var c CustomerWithContact
		err := rows.Scan(&c.ID, &c.Name, &c.MerchantID, &c.Tags, &c.VerifiedAt,
			&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
			&c.ContactChannelID, &c.ContactChannelName, &c.ContactChannelValue,
			&c.CustomerContactChannels)
		if err != nil {
			return nil, fmt.Errorf("customers: scan list row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IDsByTags returns the ids of live customers carrying every given tag.
// The scheduler uses it to fan a tagged reminder out into per-customer jobs.
func (s *Store) IDsByTags(ctx context.Context, merchantID uuid.UUID, tags []string) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id
		FROM customers
		WHERE merchant_id = $1 AND deleted_at IS NULL AND tags @> $2`,
		merchantID, tags)
	if err != nil {
		return nil, fmt.Errorf("customers: ids by tags: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("customers: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update rewrites name and tags of a merchant-scoped customer.
func (s *Store) Update(ctx context.Context, merchantID, id uuid.UUID, name string, tags []string) (Customer, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE customers
		SET name = $1, tags = $2, updated_at = now()
		WHERE id = $3 AND merchant_id = $4 AND deleted_at IS NULL
		RETURNING `+customerColumns,
		name, tags, id, merchantID)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("customers: update: %w", err)
	}
	return c, nil
}

// SoftDelete stamps deleted_at; already-deleted rows are not found.
func (s *Store) SoftDelete(ctx context.Context, merchantID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE customers
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND merchant_id = $2 AND deleted_at IS NULL`,
		id, merchantID)
	if err != nil {
		return fmt.Errorf("customers: soft delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// StampVerified marks the customer as having completed contact verification.
func (s *Store) StampVerified(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE customers
		SET verified_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		id)
	if err != nil {
		return fmt.Errorf("customers: stamp verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// DistinctTags returns the deduplicated union of tags across a merchant's
// live customers.
func (s *Store) DistinctTags(ctx context.Context, merchantID uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT unnest(tags)
		FROM customers
		WHERE merchant_id = $1 AND deleted_at IS NULL
		ORDER BY 1`,
		merchantID)
	if err != nil {
		return nil, fmt.Errorf("customers: distinct tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("customers: scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ListContactChannels returns the fixed channel reference set.
func (s *Store) ListContactChannels(ctx context.Context) ([]ContactChannel, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM contact_channels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("customers: list channels: %w", err)
	}
	defer rows.Close()

	var out []ContactChannel
	for rows.Next() {
		var cc ContactChannel
		if err := rows.Scan(&cc.ID, &cc.Name); err != nil {
			return nil, fmt.Errorf("customers: scan channel: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// GetChannelByName resolves a channel from the reference set.
func (s *Store) GetChannelByName(ctx context.Context, name string) (ContactChannel, error) {
	var cc ContactChannel
	err := s.db.QueryRow(ctx, `SELECT id, name FROM contact_channels WHERE name = $1`, name).
		Scan(&cc.ID, &cc.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return ContactChannel{}, ErrChannelNotFound
	}
	if err != nil {
		return ContactChannel{}, fmt.Errorf("customers: get channel: %w", err)
	}
	return cc, nil
}

// GetByMerchantContactChannel finds the live customer of a merchant that is
// bound to the given channel value, e.g. (merchant, telegram, username).
func (s *Store) GetByMerchantContactChannel(ctx context.Context, merchantID uuid.UUID, channelName, value string) (Customer, CustomerContactChannel, error) {
	row := s.db.QueryRow(ctx, `
		SELECT c.id, c.name, c.merchant_id, c.tags, c.verified_at,
		       c.created_at, c.updated_at, c.deleted_at,
		       ccc.id, ccc.customer_id, ccc.contact_channel_id, ccc.value,
		       ccc.additional_value, ccc.created_at, ccc.updated_at
		FROM customers c
		JOIN customer_contact_channels ccc ON ccc.customer_id = c.id
		JOIN contact_channels cc ON cc.id = ccc.contact_channel_id
		WHERE c.merchant_id = $1 AND cc.name = $2 AND ccc.value = $3
		  AND c.deleted_at IS NULL`,
		merchantID, channelName, value)

	var c Customer
	var contact CustomerContactChannel
	err := row.Scan(&c.ID, &c.Name, &c.MerchantID, &c.Tags, &c.VerifiedAt,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
		&contact.ID, &contact.CustomerID, &contact.ContactChannelID,
		&contact.Value, &contact.AdditionalValue, &contact.CreatedAt, &contact.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, CustomerContactChannel{}, ErrContactNotFound
	}
	if err != nil {
		return Customer{}, CustomerContactChannel{}, fmt.Errorf("customers: get by contact: %w", err)
	}
	return c, contact, nil
}

// UpdateAdditionalValue binds out-of-band channel data, e.g. a Telegram
// chat id, to an existing contact.
func (s *Store) UpdateAdditionalValue(ctx context.Context, contactID uuid.UUID, additionalValue string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE customer_contact_channels
		SET additional_value = $1, updated_at = now()
		WHERE id = $2`,
		additionalValue, contactID)
	if err != nil {
		return fmt.Errorf("customers: update additional value: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

// ResolveContacts returns every channel binding of a merchant's live
// customer, ordered by channel name so dispatch fan-out is deterministic.
func (s *Store) ResolveContacts(ctx context.Context, customerID, merchantID uuid.UUID) ([]ResolvedContact, error) {
	rows, err := s.db.Query(ctx, `
		SELECT cc.name, ccc.value, ccc.additional_value
		FROM customer_contact_channels ccc
		JOIN contact_channels cc ON cc.id = ccc.contact_channel_id
		JOIN customers c ON c.id = ccc.customer_id
		WHERE ccc.customer_id = $1 AND c.merchant_id = $2 AND c.deleted_at IS NULL
		ORDER BY cc.name`,
		customerID, merchantID)
	if err != nil {
		return nil, fmt.Errorf("customers: resolve contacts: %w", err)
	}
	defer rows.Close()

	var out []ResolvedContact
	for rows.Next() {
		var rc ResolvedContact
		if err := rows.Scan(&rc.Name, &rc.Value, &rc.AdditionalValue); err != nil {
			return nil, fmt.Errorf("customers: scan contact: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
