package telegrambot

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/inving/dispatch/internal/api/respond"
	"github.com/inving/dispatch/internal/customers"
	"github.com/inving/dispatch/internal/merchants"
	"github.com/inving/dispatch/pkg/logging"
)

const secretHeader = "x-telegram-bot-api-secret-token"

// Chat replies. The bot platform retries on non-2xx, so every error path
// still answers HTTP 200.
const (
	msgWelcome       = "Hi, welcome to the telegram bot. Send /connect to connect to the merchant"
	msgAskCode       = "OK. Send me the merchant code that you get from the merchant"
	msgCleared       = "OK. Send /connect to connect to the merchant"
	msgInvalidCode   = "The merchant code is not valid, please check again."
	msgNotRegistered = "You're not registered in this merchant, please ask admin to register your telegram username."
	msgRegistered    = "Thank you for register as customer"
)

// Update is the subset of the Telegram update payload the bot reads.
type Update struct {
	Message struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

type telegramSender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type merchantResolver interface {
	GetByCode(ctx context.Context, code string) (merchants.Merchant, error)
}

type customerBinder interface {
	GetByMerchantContactChannel(ctx context.Context, merchantID uuid.UUID, channelName, value string) (customers.Customer, customers.CustomerContactChannel, error)
	UpdateAdditionalValue(ctx context.Context, contactID uuid.UUID, additionalValue string) error
}

type verificationStarter interface {
	Setup(ctx context.Context, userID, customerID *uuid.UUID, channel, value string) error
}

// Webhook handles Telegram update callbacks and drives the /connect
// onboarding handshake.
type Webhook struct {
	state        *StateStore
	sender       telegramSender
	merchants    merchantResolver
	customers    customerBinder
	verification verificationStarter
	secret       string
	logger       *logging.Logger
}

func NewWebhook(state *StateStore, sender telegramSender, merchants merchantResolver, customers customerBinder, verification verificationStarter, secret string, logger *logging.Logger) *Webhook {
	if logger == nil {
		logger = logging.Default()
	}
	return &Webhook{
		state:        state,
		sender:       sender,
		merchants:    merchants,
		customers:    customers,
		verification: verification,
		secret:       secret,
		logger:       logger,
	}
}

// Handle processes one update.
func (h *Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(secretHeader) != h.secret {
		h.logger.Error("telegram webhook rejected", "reason", "bad secret token")
		respond.WebhookError(w, "Invalid secret token")
		return
	}

	var update Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Error("telegram webhook decode failed", "error", err)
		respond.WebhookError(w, "Invalid update payload")
		return
	}

	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)
	if chatID == 0 || text == "" {
		respond.OK(w, http.StatusOK, "OK", nil)
		return
	}

	ctx := r.Context()
	var err error
	switch text {
	case "/start":
		err = h.sender.Send(ctx, chatID, msgWelcome)
	case "/connect":
		if err = h.state.SetConnecting(ctx, chatID); err == nil {
			err = h.sender.Send(ctx, chatID, msgAskCode)
		}
	case "/clear":
		if err = h.state.Clear(ctx, chatID); err == nil {
			err = h.sender.Send(ctx, chatID, msgCleared)
		}
	default:
		err = h.handleMerchantCode(ctx, chatID, update.Message.From.Username, text)
	}
	if err != nil {
		h.logger.Error("telegram webhook failed", "chat_id", chatID, "error", err)
		respond.WebhookError(w, err.Error())
		return
	}
	respond.OK(w, http.StatusOK, "OK", nil)
}

// handleMerchantCode treats free text as a merchant code when the chat is
// in the connecting state; anything else is ignored.
func (h *Webhook) handleMerchantCode(ctx context.Context, chatID int64, username, text string) error {
	connecting, err := h.state.IsConnecting(ctx, chatID)
	if err != nil {
		return err
	}
	if !connecting {
		return nil
	}

	merchant, err := h.merchants.GetByCode(ctx, strings.ToLower(text))
	if err != nil {
		return h.sender.Send(ctx, chatID, msgInvalidCode)
	}

	customer, contact, err := h.customers.GetByMerchantContactChannel(ctx, merchant.ID, "telegram", username)
	if err != nil {
		return h.sender.Send(ctx, chatID, msgNotRegistered)
	}

	chatIDValue := strconv.FormatInt(chatID, 10)
	if err := h.verification.Setup(ctx, nil, &customer.ID, "telegram", chatIDValue); err != nil {
		return err
	}
	if err := h.customers.UpdateAdditionalValue(ctx, contact.ID, chatIDValue); err != nil {
		return err
	}
	if err := h.state.Clear(ctx, chatID); err != nil {
		return err
	}
	return h.sender.Send(ctx, chatID, msgRegistered)
}
