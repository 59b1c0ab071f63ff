package verification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/inving/dispatch/pkg/logging"
)

// Principal stampers mark the verified entity once the code matches.
type (
	userStamper interface {
		StampUserVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	}
	customerStamper interface {
		StampVerified(ctx context.Context, id uuid.UUID) error
	}
)

// Handler renders the verification landing page.
type Handler struct {
	store     *Store
	users     userStamper
	customers customerStamper
	logger    *logging.Logger
	now       func() time.Time
}

func NewHandler(store *Store, users userStamper, customers customerStamper, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, users: users, customers: customers, logger: logger, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

const landingPage = `<!DOCTYPE html>
<html>
<head><title>Verification</title></head>
<body><h1>%s</h1></body>
</html>`

func renderLanding(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, landingPage, message)
}

// Verify handles GET /verify?code=...&id=.... Expired or reused links render
// a terminal page without mutating anything.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		renderLanding(w, "Invalid verification link")
		return
	}
	code := r.URL.Query().Get("code")

	v, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		renderLanding(w, "Invalid verification link")
		return
	}
	if v.IsExpired(h.now()) {
		renderLanding(w, "Verification link has expired")
		return
	}
	if v.Status == StatusVerified {
		renderLanding(w, "This verification link has already been used")
		return
	}
	if v.Code != code {
		renderLanding(w, "Invalid verification link")
		return
	}

	if err := h.store.UpdateStatus(r.Context(), v.ID, StatusVerified); err != nil {
		h.logger.Error("mark verification verified failed", "verification_id", v.ID, "error", err)
		renderLanding(w, "Something went wrong, please try again")
		return
	}

	switch {
	case v.UserID != nil:
		err = h.users.StampUserVerified(r.Context(), *v.UserID, h.now())
	case v.CustomerID != nil:
		err = h.customers.StampVerified(r.Context(), *v.CustomerID)
	}
	if err != nil {
		h.logger.Error("stamp principal verified failed", "verification_id", v.ID, "error", err)
		renderLanding(w, "Something went wrong, please try again")
		return
	}

	renderLanding(w, "Thank you for verifying!")
}
