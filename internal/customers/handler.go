package customers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inving/dispatch/internal/api/respond"
	"github.com/inving/dispatch/internal/merchants"
	"github.com/inving/dispatch/pkg/logging"
)

// verificationStarter kicks off contact verification after a customer is
// registered. Failures are logged, not surfaced; the customer row already
// exists.
type verificationStarter interface {
	Setup(ctx context.Context, userID, customerID *uuid.UUID, channel, value string) error
}

// Handler serves the merchant-scoped customer endpoints.
type Handler struct {
	store        *Store
	verification verificationStarter
	logger       *logging.Logger
}

func NewHandler(store *Store, verification verificationStarter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, verification: verification, logger: logger}
}

type createCustomerRequest struct {
	Name           string   `json:"name"`
	ContactChannel string   `json:"contact_channel"`
	Value          string   `json:"value"`
	Tags           []string `json:"tags"`
}

func (r createCustomerRequest) validate() []string {
	var errs []string
	if len(r.Name) < 2 || len(r.Name) > 64 {
		errs = append(errs, "name must be between 2 and 64 characters")
	}
	if strings.TrimSpace(r.ContactChannel) == "" {
		errs = append(errs, "contact_channel is required")
	}
	if strings.TrimSpace(r.Value) == "" {
		errs = append(errs, "value is required")
	}
	return errs
}

// Create registers a customer with its first contact channel and starts
// verification over that channel.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	merchant, ok := merchants.MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}

	var req createCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Unprocessable(w, "Invalid request body", err.Error())
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		respond.Unprocessable(w, "Validation failed", errs)
		return
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}

	customer := Customer{
		Name:       req.Name,
		MerchantID: merchant.ID,
		Tags:       req.Tags,
	}
	contact, err := h.store.CreateWithContact(r.Context(), &customer, req.ContactChannel, req.Value)
	if errors.Is(err, ErrChannelNotFound) {
		respond.Unprocessable(w, "Contact channel not found", req.ContactChannel)
		return
	}
	if err != nil {
		h.logger.Error("create customer failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to create customer")
		return
	}

	if err := h.verification.Setup(r.Context(), nil, &customer.ID, req.ContactChannel, contact.Value); err != nil {
		h.logger.Error("customer verification setup failed",
			"customer_id", customer.ID, "error", err)
	}

	respond.OK(w, http.StatusCreated, "Customer created", customer)
}

// List returns the merchant's customers joined with contact channels. A
// comma-separated tags query narrows the result to customers carrying every
// given tag.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	merchant, ok := merchants.MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}

	var tags []string
	if raw := r.URL.Query().Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	list, err := h.store.ListByMerchant(r.Context(), merchant.ID, tags)
	if err != nil {
		h.logger.Error("list customers failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to list customers")
		return
	}
	if list == nil {
		list = []CustomerWithContact{}
	}
	respond.OK(w, http.StatusOK, "Customers", list)
}

// Get returns a single customer scoped to the merchant.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	merchant, ok := merchants.MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}
	customerID, err := uuid.Parse(chi.URLParam(r, "customerID"))
	if err != nil {
		respond.Unprocessable(w, "Invalid format customer id", err.Error())
		return
	}

	customer, err := h.store.GetByID(r.Context(), merchant.ID, customerID)
	if errors.Is(err, ErrCustomerNotFound) {
		respond.Unprocessable(w, "Customer not found", customerID.String())
		return
	}
	if err != nil {
		h.logger.Error("get customer failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to get customer")
		return
	}
	respond.OK(w, http.StatusOK, "Customer", customer)
}

type updateCustomerRequest struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Update rewrites name and tags.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	merchant, ok := merchants.MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}
	customerID, err := uuid.Parse(chi.URLParam(r, "customerID"))
	if err != nil {
		respond.Unprocessable(w, "Invalid format customer id", err.Error())
		return
	}

	var req updateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Unprocessable(w, "Invalid request body", err.Error())
		return
	}
	if len(req.Name) < 2 || len(req.Name) > 64 {
		respond.Unprocessable(w, "Validation failed", "name must be between 2 and 64 characters")
		return
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}

	customer, err := h.store.Update(r.Context(), merchant.ID, customerID, req.Name, req.Tags)
	if errors.Is(err, ErrCustomerNotFound) {
		respond.Unprocessable(w, "Customer not found", customerID.String())
		return
	}
	if err != nil {
		h.logger.Error("update customer failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to update customer")
		return
	}
	respond.OK(w, http.StatusOK, "Customer updated", customer)
}

// Delete soft-deletes a customer.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	merchant, ok := merchants.MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}
	customerID, err := uuid.Parse(chi.URLParam(r, "customerID"))
	if err != nil {
		respond.Unprocessable(w, "Invalid format customer id", err.Error())
		return
	}

	err = h.store.SoftDelete(r.Context(), merchant.ID, customerID)
	if errors.Is(err, ErrCustomerNotFound) {
		respond.Unprocessable(w, "Customer not found", customerID.String())
		return
	}
	if err != nil {
		h.logger.Error("delete customer failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to delete customer")
		return
	}
	respond.OK(w, http.StatusOK, "Customer deleted", nil)
}

// Tags returns the deduplicated tag set across a merchant's customers.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	merchant, ok := merchants.MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}

	tags, err := h.store.DistinctTags(r.Context(), merchant.ID)
	if err != nil {
		h.logger.Error("list tags failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to list tags")
		return
	}
	if tags == nil {
		tags = []string{}
	}
	respond.OK(w, http.StatusOK, "Tags", tags)
}

// ContactChannels returns the fixed channel reference set.
func (h *Handler) ContactChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.store.ListContactChannels(r.Context())
	if err != nil {
		h.logger.Error("list contact channels failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to list contact channels")
		return
	}
	respond.OK(w, http.StatusOK, "Contact channels", channels)
}
