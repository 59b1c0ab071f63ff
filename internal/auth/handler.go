package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/inving/dispatch/internal/api/respond"
	"github.com/inving/dispatch/pkg/logging"
)

// verificationStarter kicks off the email verification flow for a freshly
// registered user.
type verificationStarter interface {
	Setup(ctx context.Context, userID, customerID *uuid.UUID, channelName, contactValue string) error
}

// Handler serves /register and /login.
type Handler struct {
	store         *Store
	hasher        *Hasher
	appKey        string
	verifications verificationStarter
	logger        *logging.Logger
}

func NewHandler(store *Store, hasher *Hasher, appKey string, verifications verificationStarter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:         store,
		hasher:        hasher,
		appKey:        appKey,
		verifications: verifications,
		logger:        logger,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a user and sends the initial verification email.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Unprocessable(w, "invalid JSON body", err.Error())
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	email := canonicalEmail(req.Email)
	password := strings.TrimSpace(req.Password)

	if errs := validateRegistration(req.Name, email, password); len(errs) > 0 {
		respond.Unprocessable(w, "validation failed", errs)
		return
	}

	if _, err := h.store.GetUserByEmail(r.Context(), email); err == nil {
		respond.Unprocessable(w, "Email already exist", email)
		return
	} else if !errors.Is(err, ErrUserNotFound) {
		respond.Error(w, http.StatusInternalServerError, "register failed", err.Error())
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.Name, email, h.hasher.Hash(password))
	if err != nil {
		respond.Unprocessable(w, "register failed", err.Error())
		return
	}

	if err := h.verifications.Setup(r.Context(), &user.ID, nil, "email", user.Email); err != nil {
		// The account exists; a failed verification email is not fatal.
		h.logger.Error("verification email failed", "error", err, "user_id", user.ID)
	}

	respond.OK(w, http.StatusCreated, "register success, we will inform you when your account is ready", user)
}

// Login verifies credentials and issues an opaque access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Unprocessable(w, "invalid JSON body", err.Error())
		return
	}

	email := canonicalEmail(req.Email)
	password := strings.TrimSpace(req.Password)

	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		respond.Unprocessable(w, "login failed", "invalid email or password")
		return
	}

	if !h.hasher.Verify(password, user.Password) {
		respond.Unprocessable(w, "login failed", "invalid email or password")
		return
	}

	token, err := h.store.IssueToken(r.Context(), user.ID, h.appKey)
	if err != nil {
		respond.Unprocessable(w, "login failed", err.Error())
		return
	}

	respond.OKWithToken(w, http.StatusOK, "login success", token.AccessToken, user)
}

// canonicalEmail trims and lowercases, so lookups and the unique index agree.
func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(name, email, password string) map[string]string {
	errs := map[string]string{}
	if len(name) < 4 || len(name) > 24 {
		errs["name"] = "must be between 4 and 24 characters"
	}
	if _, err := mail.ParseAddress(email); err != nil {
		errs["email"] = "must be a valid email address"
	}
	if len(password) < 4 {
		errs["password"] = "must be at least 4 characters"
	}
	return errs
}
