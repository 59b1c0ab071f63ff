package scheduler

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
	"github.com/inving/dispatch/internal/invoices"
	"github.com/inving/dispatch/internal/merchants"
	"github.com/inving/dispatch/pkg/logging"
)

// handlerScheduleStore is the schedule surface admission needs.
type handlerScheduleStore interface {
	Create(ctx context.Context, jobType string, jobData JobData, plan Recurrence) (JobSchedule, error)
	Transition(ctx context.Context, id uuid.UUID, to string) error
	LookupByJobData(ctx context.Context, key, value string) ([]JobSchedule, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]JobSchedule, error)
}

// handlerQueueStore cancels open queue rows alongside their schedule.
type handlerQueueStore interface {
	CancelByInvoice(ctx context.Context, invoiceID, userID uuid.UUID) error
}

// invoiceGetter loads merchant-scoped invoices for schedule admission.
type invoiceGetter interface {
	GetByID(ctx context.Context, merchantID, id uuid.UUID) (invoices.Invoice, error)
}

// customerDirectory resolves schedule targets.
type customerDirectory interface {
	GetByID(ctx context.Context, merchantID, id uuid.UUID) (customers.Customer, error)
	IDsByTags(ctx context.Context, merchantID uuid.UUID, tags []string) ([]uuid.UUID, error)
}

// Handler serves the schedule admission endpoints.
type Handler struct {
	schedules handlerScheduleStore
	queue     handlerQueueStore
	invoices  invoiceGetter
	customers customerDirectory
	minWindow time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

func NewHandler(schedules handlerScheduleStore, queue handlerQueueStore, invoiceGetter invoiceGetter, customers customerDirectory, minWindow time.Duration, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		schedules: schedules,
		queue:     queue,
		invoices:  invoiceGetter,
		customers: customers,
		minWindow: minWindow,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

type setScheduleRequest struct {
	JobType            string     `json:"job_type"`
	CustomerID         *uuid.UUID `json:"customer_id,omitempty"`
	InvoiceID          *uuid.UUID `json:"invoice_id,omitempty"`
	Tag                string     `json:"tag,omitempty"`
	Title              string     `json:"title,omitempty"`
	Description        string     `json:"description,omitempty"`
	IsRecurring        bool       `json:"is_recurring"`
	RepeatIntervalType string     `json:"repeat_interval_type,omitempty"`
	StartAt            *time.Time `json:"start_at,omitempty"`
	EndAt              *time.Time `json:"end_at,omitempty"`
}

// SetInvoiceSchedule creates a send_invoice schedule for the invoice in the
// path.
func (h *Handler) SetInvoiceSchedule(w http.ResponseWriter, r *http.Request) {
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
	invoiceID, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		respond.Unprocessable(w, "Invalid format invoice id", err.Error())
		return
	}

	var req setScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Unprocessable(w, "Invalid request body", err.Error())
		return
	}
	req.JobType = JobSendInvoice
	req.InvoiceID = &invoiceID

	schedule, err := h.createInvoiceSchedule(r.Context(), merchant.ID, merchant.Name, userID, req)
	if err != nil {
		h.respondScheduleError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "Schedule created", schedule)
}

// SetSchedule creates a send_invoice or send_reminder schedule. Reminder
// schedules targeted at a tag fan out into one schedule per matching
// customer.
func (h *Handler) SetSchedule(w http.ResponseWriter, r *http.Request) {
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

	var req setScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Unprocessable(w, "Invalid request body", err.Error())
		return
	}

	switch req.JobType {
	case JobSendInvoice:
		if req.InvoiceID == nil {
			respond.Unprocessable(w, "Validation failed", "invoice_id is required")
			return
		}
		schedule, err := h.createInvoiceSchedule(r.Context(), merchant.ID, merchant.Name, userID, req)
		if err != nil {
			h.respondScheduleError(w, err)
			return
		}
		respond.OK(w, http.StatusOK, "Schedule created", schedule)
	case JobSendReminder:
		if req.Title == "" {
			respond.Unprocessable(w, "Validation failed", "title is required")
			return
		}
		created, err := h.createReminderSchedules(r.Context(), merchant.ID, merchant.Name, userID, req)
		if err != nil {
			h.respondScheduleError(w, err)
			return
		}
		respond.OK(w, http.StatusOK, "Schedules created", created)
	default:
		respond.Unprocessable(w, "Validation failed", "job_type must be send_invoice or send_reminder")
	}
}

func (h *Handler) createInvoiceSchedule(ctx context.Context, merchantID uuid.UUID, merchantName string, userID uuid.UUID, req setScheduleRequest) (JobSchedule, error) {
	invoice, err := h.invoices.GetByID(ctx, merchantID, *req.InvoiceID)
	if err != nil {
		return JobSchedule{}, err
	}
	customer, err := h.customers.GetByID(ctx, merchantID, invoice.CustomerID)
	if err != nil {
		return JobSchedule{}, err
	}

	plan, err := PlanRecurrence(req.IsRecurring, req.RepeatIntervalType, req.StartAt, req.EndAt, h.minWindow, h.now())
	if err != nil {
		return JobSchedule{}, err
	}

	data := JobData{
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		MerchantID:   merchantID,
		MerchantName: merchantName,
		CreatedBy:    userID,
		InvoiceID:    &invoice.ID,
		InvoiceDate:  invoice.InvoiceDate,
	}
	return h.schedules.Create(ctx, JobSendInvoice, data, plan)
}

func (h *Handler) createReminderSchedules(ctx context.Context, merchantID uuid.UUID, merchantName string, userID uuid.UUID, req setScheduleRequest) ([]JobSchedule, error) {
	var targets []uuid.UUID
	switch {
	case req.CustomerID != nil:
		targets = []uuid.UUID{*req.CustomerID}
	case req.Tag != "":
		ids, err := h.customers.IDsByTags(ctx, merchantID, []string{req.Tag})
		if err != nil {
			return nil, err
		}
		targets = ids
	default:
		return nil, errors.New("customer_id or tag is required")
	}
	if len(targets) == 0 {
		return nil, customers.ErrCustomerNotFound
	}

	plan, err := PlanRecurrence(req.IsRecurring, req.RepeatIntervalType, req.StartAt, req.EndAt, h.minWindow, h.now())
	if err != nil {
		return nil, err
	}

	created := make([]JobSchedule, 0, len(targets))
	for _, customerID := range targets {
		customer, err := h.customers.GetByID(ctx, merchantID, customerID)
		if err != nil {
			return nil, err
		}
		data := JobData{
			CustomerID:   customer.ID,
			CustomerName: customer.Name,
			MerchantID:   merchantID,
			MerchantName: merchantName,
			CreatedBy:    userID,
			Title:        req.Title,
			Description:  req.Description,
		}
		schedule, err := h.schedules.Create(ctx, JobSendReminder, data, plan)
		if err != nil {
			return nil, err
		}
		created = append(created, schedule)
	}
	return created, nil
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateInvoiceScheduleStatus cancels the open schedule bound to an invoice
// together with its open queue rows.
func (h *Handler) UpdateInvoiceScheduleStatus(w http.ResponseWriter, r *http.Request) {
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
	invoiceID, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		respond.Unprocessable(w, "Invalid format invoice id", err.Error())
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Unprocessable(w, "Invalid request body", err.Error())
		return
	}
	if req.Status != StatusCanceled {
		respond.Unprocessable(w, "Validation failed", "status must be canceled")
		return
	}

	if _, err := h.invoices.GetByID(r.Context(), merchant.ID, invoiceID); err != nil {
		respond.Unprocessable(w, "Invoice not found", invoiceID.String())
		return
	}

	schedules, err := h.schedules.LookupByJobData(r.Context(), "invoice_id", invoiceID.String())
	if err != nil {
		h.logger.Error("lookup schedules failed", "invoice_id", invoiceID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to cancel schedule")
		return
	}

	canceled := 0
	for _, schedule := range schedules {
		if schedule.Status == StatusCompleted || schedule.Status == StatusCanceled {
			continue
		}
		if err := h.schedules.Transition(r.Context(), schedule.ID, StatusCanceled); err != nil {
			h.logger.Error("cancel schedule failed", "schedule_id", schedule.ID, "error", err)
			continue
		}
		canceled++
	}
	if canceled == 0 {
		respond.Unprocessable(w, "No open schedule for invoice", invoiceID.String())
		return
	}

	if err := h.queue.CancelByInvoice(r.Context(), invoiceID, userID); err != nil {
		h.logger.Error("cancel queue rows failed", "invoice_id", invoiceID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to cancel schedule")
		return
	}
	respond.OK(w, http.StatusOK, "Schedule canceled", nil)
}

// List returns the schedules referencing the merchant.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	merchant, ok := merchants.MerchantFromContext(r.Context())
	if !ok {
		respond.Unprocessable(w, "Merchant not found")
		return
	}

	schedules, err := h.schedules.ListByMerchant(r.Context(), merchant.ID)
	if err != nil {
		h.logger.Error("list schedules failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to list schedules")
		return
	}
	if schedules == nil {
		schedules = []JobSchedule{}
	}
	respond.OK(w, http.StatusOK, "Schedules", schedules)
}

func (h *Handler) respondScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlreadyScheduled):
		respond.Unprocessable(w, "Invoice already scheduled")
	case errors.Is(err, ErrUnknownInterval), errors.Is(err, ErrInvalidWindow):
		respond.Unprocessable(w, "Validation failed", err.Error())
	case errors.Is(err, invoices.ErrInvoiceNotFound):
		respond.Unprocessable(w, "Invoice not found")
	case errors.Is(err, customers.ErrCustomerNotFound):
		respond.Unprocessable(w, "Customer not found")
	default:
		h.logger.Error("create schedule failed", "error", err)
		respond.Unprocessable(w, "Failed to create schedule", err.Error())
	}
}
