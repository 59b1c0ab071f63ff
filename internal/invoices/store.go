package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inving/dispatch/internal/postgres"
)

var ErrInvoiceNotFound = errors.New("invoices: invoice not found")

// Store persists invoices and their line items.
type Store struct {
	db postgres.DB
}

func NewStore(db postgres.DB) *Store {
	return &Store{db: db}
}

const invoiceColumns = `id, invoice_number, merchant_id, customer_id, amount, tax_rate,
	tax_amount, total_amount, invoice_date, title, description, created_by,
	payment_payload, created_at, updated_at, deleted_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.MerchantID, &inv.CustomerID,
		&inv.Amount, &inv.TaxRate, &inv.TaxAmount, &inv.TotalAmount,
		&inv.InvoiceDate, &inv.Title, &inv.Description, &inv.CreatedBy,
		&inv.PaymentPayload, &inv.CreatedAt, &inv.UpdatedAt, &inv.DeletedAt)
	return inv, err
}

// Create inserts the invoice and its items in one transaction.
func (s *Store) Create(ctx context.Context, inv *Invoice, items []InvoiceItem) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("invoices: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (invoice_number, merchant_id, customer_id, amount,
			tax_rate, tax_amount, total_amount, title, description, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+invoiceColumns,
		inv.InvoiceNumber, inv.MerchantID, inv.CustomerID, inv.Amount,
		inv.TaxRate, inv.TaxAmount, inv.TotalAmount, inv.Title,
		inv.Description, inv.CreatedBy,
	).Scan(&inv.ID, &inv.InvoiceNumber, &inv.MerchantID, &inv.CustomerID,
		&inv.Amount, &inv.TaxRate, &inv.TaxAmount, &inv.TotalAmount,
		&inv.InvoiceDate, &inv.Title, &inv.Description, &inv.CreatedBy,
		&inv.PaymentPayload, &inv.CreatedAt, &inv.UpdatedAt, &inv.DeletedAt)
	if err != nil {
		return fmt.Errorf("invoices: insert invoice: %w", err)
	}

	for i := range items {
		items[i].InvoiceID = inv.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO invoice_items (invoice_id, name, amount, quantity)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			items[i].InvoiceID, items[i].Name, items[i].Amount, items[i].Quantity,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("invoices: insert item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("invoices: commit create: %w", err)
	}
	return nil
}

// GetByID loads a live invoice scoped to a merchant.
func (s *Store) GetByID(ctx context.Context, merchantID, id uuid.UUID) (Invoice, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1 AND merchant_id = $2 AND deleted_at IS NULL`,
		id, merchantID)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: get by id: %w", err)
	}
	return inv, nil
}

// GetByIDOnly loads an invoice without a merchant scope. The pipeline uses
// it when the merchant is already fixed by the schedule payload.
func (s *Store) GetByIDOnly(ctx context.Context, id uuid.UUID) (Invoice, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1 AND deleted_at IS NULL`,
		id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: get by id only: %w", err)
	}
	return inv, nil
}

// ListByMerchant returns a merchant's live invoices, newest first.
func (s *Store) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]Invoice, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE merchant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`,
		merchantID)
	if err != nil {
		return nil, fmt.Errorf("invoices: list by merchant: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("invoices: scan list row: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListItems returns the line items of an invoice.
func (s *Store) ListItems(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, invoice_id, name, amount, quantity
		FROM invoice_items
		WHERE invoice_id = $1`,
		invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoices: list items: %w", err)
	}
	defer rows.Close()

	var out []InvoiceItem
	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Name, &item.Amount, &item.Quantity); err != nil {
			return nil, fmt.Errorf("invoices: scan item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ReplaceItems hard-deletes the existing line items and inserts the new set.
func (s *Store) ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []InvoiceItem) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("invoices: begin replace items: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("invoices: delete items: %w", err)
	}
	for i := range items {
		items[i].InvoiceID = invoiceID
		err = tx.QueryRow(ctx, `
			INSERT INTO invoice_items (invoice_id, name, amount, quantity)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			invoiceID, items[i].Name, items[i].Amount, items[i].Quantity,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("invoices: insert item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("invoices: commit replace items: %w", err)
	}
	return nil
}

// SetInvoiceDate stamps the invoice_date. The enqueuer refreshes it right
// before the payment link is created.
func (s *Store) SetInvoiceDate(ctx context.Context, id uuid.UUID, date time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE invoices
		SET invoice_date = $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL`,
		date, id)
	if err != nil {
		return fmt.Errorf("invoices: set invoice date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// SetPaymentPayload stores the opaque provider response.
func (s *Store) SetPaymentPayload(ctx context.Context, id uuid.UUID, payload json.RawMessage) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE invoices
		SET payment_payload = $1, updated_at = now()
		WHERE id = $2 AND deleted_at IS NULL`,
		payload, id)
	if err != nil {
		return fmt.Errorf("invoices: set payment payload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}
