package invoices

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaxRate is the flat percentage applied to every invoice.
const TaxRate = 11

// Invoice is a billable document issued by a merchant to a customer.
// PaymentPayload is the opaque provider response; only invoice_url is read
// from it downstream.
type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	MerchantID     uuid.UUID       `json:"merchant_id"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	Amount         int64           `json:"amount"`
	TaxRate        int32           `json:"tax_rate"`
	TaxAmount      int64           `json:"tax_amount"`
	TotalAmount    int64           `json:"total_amount"`
	InvoiceDate    *time.Time      `json:"invoice_date,omitempty"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	CreatedBy      uuid.UUID       `json:"created_by"`
	PaymentPayload json.RawMessage `json:"payment_payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
}

// InvoiceItem is a line item. Items are hard-deleted when replaced.
type InvoiceItem struct {
	ID        uuid.UUID `json:"id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
	Name      string    `json:"name"`
	Amount    int64     `json:"amount"`
	Quantity  int32     `json:"quantity"`
}

// InvoiceNumber builds the provider-facing external id at creation time.
func InvoiceNumber(createdBy uuid.UUID, now time.Time) string {
	return fmt.Sprintf("INVC-%s-%d", createdBy, now.Unix())
}

// Tax returns the tax amount for a base amount, floored.
func Tax(amount int64) int64 {
	return amount * TaxRate / 100
}

// PaymentURL extracts invoice_url from the payment payload. It is the only
// field of the provider response the rest of the system depends on.
func (inv Invoice) PaymentURL() (string, error) {
	if len(inv.PaymentPayload) == 0 {
		return "", fmt.Errorf("invoices: invoice %s has no payment payload", inv.ID)
	}
	var payload struct {
		InvoiceURL string `json:"invoice_url"`
	}
	if err := json.Unmarshal(inv.PaymentPayload, &payload); err != nil {
		return "", fmt.Errorf("invoices: decode payment payload: %w", err)
	}
	if payload.InvoiceURL == "" {
		return "", fmt.Errorf("invoices: payment payload has no invoice_url")
	}
	return payload.InvoiceURL, nil
}

// Summary is the stringified description sent to the payment provider.
func (inv Invoice) Summary() string {
	return fmt.Sprintf("%s - %s", inv.Title, inv.Description)
}
