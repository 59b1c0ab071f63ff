package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inving/dispatch/internal/api/respond"
	"github.com/inving/dispatch/internal/customers"
	"github.com/inving/dispatch/internal/http/middleware"
	"github.com/inving/dispatch/internal/merchants"
	"github.com/inving/dispatch/pkg/logging"
)

// paymentLinkCreator is the payment provider surface the handler needs.
type paymentLinkCreator interface {
	CreateInvoice(ctx context.Context, externalID string, amount int64, description string) (json.RawMessage, error)
}

type customerGetter interface {
	GetByID(ctx context.Context, merchantID, id uuid.UUID) (customers.Customer, error)
}

// Handler serves the merchant-scoped invoice endpoints.
type Handler struct {
	store     *Store
	customers customerGetter
	payments  paymentLinkCreator
	logger    *logging.Logger
	now       func() time.Time
}

func NewHandler(store *Store, customers customerGetter, payments paymentLinkCreator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:     store,
		customers: customers,
		payments:  payments,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

type invoiceItemRequest struct {
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Quantity int32  `json:"quantity"`
}

type createInvoiceRequest struct {
	CustomerID  uuid.UUID            `json:"customer_id"`
	Amount      int64                `json:"amount"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Items       []invoiceItemRequest `json:"items"`
}

func (r createInvoiceRequest) validate() []string {
	var errs []string
	if r.CustomerID == uuid.Nil {
		errs = append(errs, "customer_id is required")
	}
	if r.Amount <= 0 {
		errs = append(errs, "amount must be positive")
	}
	if r.Title == "" {
		errs = append(errs, "title is required")
	}
	for _, item := range r.Items {
		if item.Name == "" || item.Amount <= 0 || item.Quantity <= 0 {
			errs = append(errs, "items must have a name, positive amount and positive quantity")
			break
		}
	}
	return errs
}

// Create issues an invoice with its line items and requests the payment
// link synchronously.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	merchant, ok := merchants.MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Unprocessable(w, "Invalid request body", err.Error())
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		respond.Unprocessable(w, "Validation failed", errs)
		return
	}

	if _, err := h.customers.GetByID(r.Context(), merchant.ID, req.CustomerID); err != nil {
		respond.Unprocessable(w, "Customer not found", req.CustomerID.String())
		return
	}

	now := h.now()
	tax := Tax(req.Amount)
	inv := Invoice{
		InvoiceNumber: InvoiceNumber(userID, now),
		MerchantID:    merchant.ID,
		CustomerID:    req.CustomerID,
		Amount:        req.Amount,
		TaxRate:       TaxRate,
		TaxAmount:     tax,
		TotalAmount:   req.Amount + tax,
		Title:         req.Title,
		Description:   req.Description,
		CreatedBy:     userID,
	}
	items := make([]InvoiceItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, InvoiceItem{Name: item.Name, Amount: item.Amount, Quantity: item.Quantity})
	}

	if err := h.store.Create(r.Context(), &inv, items); err != nil {
		h.logger.Error("create invoice failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to create invoice")
		return
	}

	payload, err := h.payments.CreateInvoice(r.Context(), inv.InvoiceNumber, inv.TotalAmount, inv.Summary())
	if err != nil {
		h.logger.Error("payment link creation failed",
			"invoice_id", inv.ID, "invoice_number", inv.InvoiceNumber, "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to create payment link")
		return
	}
	if err := h.store.SetPaymentPayload(r.Context(), inv.ID, payload); err != nil {
		h.logger.Error("store payment payload failed", "invoice_id", inv.ID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to create invoice")
		return
	}
	inv.PaymentPayload = payload

	respond.OK(w, http.StatusCreated, "Invoice created", inv)
}

// List returns the merchant's invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	merchant, ok := merchants.MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}

	list, err := h.store.ListByMerchant(r.Context(), merchant.ID)
	if err != nil {
		h.logger.Error("list invoices failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to list invoices")
		return
	}
	if list == nil {
		list = []Invoice{}
	}
	respond.OK(w, http.StatusOK, "Invoices", list)
}

// Get returns a single invoice with its line items.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	merchant, ok := merchants.MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}
	invoiceID, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		respond.Unprocessable(w, "Invalid format invoice id", err.Error())
		return
	}

	inv, err := h.store.GetByID(r.Context(), merchant.ID, invoiceID)
	if errors.Is(err, ErrInvoiceNotFound) {
		respond.Unprocessable(w, "Invoice not found", invoiceID.String())
		return
	}
	if err != nil {
		h.logger.Error("get invoice failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to get invoice")
		return
	}

	items, err := h.store.ListItems(r.Context(), inv.ID)
	if err != nil {
		h.logger.Error("list invoice items failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to get invoice")
		return
	}
	respond.OK(w, http.StatusOK, "Invoice", map[string]any{
		"invoice": inv,
		"items":   items,
	})
}
