package merchants

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/inving/dispatch/internal/api/respond"
	"github.com/inving/dispatch/internal/http/middleware"
	"github.com/inving/dispatch/pkg/logging"
)

// Handler serves the merchant CRUD endpoints.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

type merchantRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Address      *string  `json:"address,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
	Tax          *float64 `json:"tax,omitempty"`
	MerchantCode string   `json:"merchant_code"`
}

func (r merchantRequest) validate() []string {
	var errs []string
	if len(r.Name) < 2 || len(r.Name) > 64 {
		errs = append(errs, "name must be between 2 and 64 characters")
	}
	if len(strings.TrimSpace(r.MerchantCode)) < 3 {
		errs = append(errs, "merchant_code must be at least 3 characters")
	}
	return errs
}

// Create registers a merchant owned by the caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	var req merchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Unprocessable(w, "Invalid request body", err.Error())
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		respond.Unprocessable(w, "Validation failed", errs)
		return
	}

	if _, err := h.store.GetByCode(r.Context(), req.MerchantCode); err == nil {
		respond.Unprocessable(w, "Merchant code already exist", req.MerchantCode)
		return
	}

	merchant, err := h.store.Create(r.Context(), CreateParams{
		Name:         req.Name,
		Description:  req.Description,
		UserID:       userID,
		Address:      req.Address,
		Phone:        req.Phone,
		Tax:          req.Tax,
		MerchantCode: req.MerchantCode,
	})
	if err != nil {
		h.logger.Error("create merchant failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to create merchant")
		return
	}
	respond.OK(w, http.StatusCreated, "Merchant created", merchant)
}

// List returns the caller's merchants.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	list, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list merchants failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to list merchants")
		return
	}
	if list == nil {
		list = []Merchant{}
	}
	respond.OK(w, http.StatusOK, "Merchants", list)
}

type updateMerchantRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Address     *string  `json:"address,omitempty"`
	Phone       *string  `json:"phone,omitempty"`
	Tax         *float64 `json:"tax,omitempty"`
}

// Update rewrites the merchant resolved by the path. The merchant code is
// fixed at creation time.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	merchant, ok := MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	var req updateMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Unprocessable(w, "Invalid request body", err.Error())
		return
	}
	if len(req.Name) < 2 || len(req.Name) > 64 {
		respond.Unprocessable(w, "Validation failed", "name must be between 2 and 64 characters")
		return
	}

	updated, err := h.store.Update(r.Context(), merchant.ID, userID, UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Address:     req.Address,
		Phone:       req.Phone,
		Tax:         req.Tax,
	})
	if errors.Is(err, ErrMerchantNotFound) {
		respond.Unprocessable(w, "Merchant not found", merchant.ID.String())
		return
	}
	if err != nil {
		h.logger.Error("update merchant failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to update merchant")
		return
	}
	respond.OK(w, http.StatusOK, "Merchant updated", updated)
}

// Delete soft-deletes the merchant resolved by the path.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	merchant, ok := MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respond.Unauthorized(w)
		return
	}

	err := h.store.SoftDelete(r.Context(), merchant.ID, userID)
	if errors.Is(err, ErrMerchantNotFound) {
		respond.Unprocessable(w, "Merchant not found", merchant.ID.String())
		return
	}
	if err != nil {
		h.logger.Error("delete merchant failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to delete merchant")
		return
	}
	respond.OK(w, http.StatusOK, "Merchant deleted", nil)
}
