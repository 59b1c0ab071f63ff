package telegrambot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inving/dispatch/internal/customers"
	"github.com/inving/dispatch/internal/merchants"
)

type stubSender struct {
	chatIDs []int64
	texts   []string
}

func (s *stubSender) Send(_ context.Context, chatID int64, text string) error {
	s.chatIDs = append(s.chatIDs, chatID)
	s.texts = append(s.texts, text)
	return nil
}

type stubMerchants struct {
	merchant merchants.Merchant
	codes    []string
	err      error
}

func (s *stubMerchants) GetByCode(_ context.Context, code string) (merchants.Merchant, error) {
	s.codes = append(s.codes, code)
	return s.merchant, s.err
}

type stubCustomers struct {
	customer         customers.Customer
	contact          customers.CustomerContactChannel
	err              error
	usernames        []string
	additionalValues []string
}

func (s *stubCustomers) GetByMerchantContactChannel(_ context.Context, _ uuid.UUID, _ string, value string) (customers.Customer, customers.CustomerContactChannel, error) {
	s.usernames = append(s.usernames, value)
	return s.customer, s.contact, s.err
}

func (s *stubCustomers) UpdateAdditionalValue(_ context.Context, _ uuid.UUID, additionalValue string) error {
	s.additionalValues = append(s.additionalValues, additionalValue)
	return nil
}

type stubVerification struct {
	customerIDs []uuid.UUID
	values      []string
}

func (s *stubVerification) Setup(_ context.Context, _, customerID *uuid.UUID, _ string, value string) error {
	if customerID != nil {
		s.customerIDs = append(s.customerIDs, *customerID)
	}
	s.values = append(s.values, value)
	return nil
}

const webhookSecret = "hook-secret"

func newTestWebhook(t *testing.T, merchants *stubMerchants, customers *stubCustomers, verification *stubVerification) (*Webhook, *stubSender, *StateStore) {
	t.Helper()
	state, _ := testStateStore(t)
	sender := &stubSender{}
	return NewWebhook(state, sender, merchants, customers, verification, webhookSecret, nil), sender, state
}

func updateRequest(secret, username, text string, chatID int64) *http.Request {
	body := fmt.Sprintf(`{"message":{"text":%q,"chat":{"id":%d},"from":{"username":%q}}}`, text, chatID, username)
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(body))
	req.Header.Set(secretHeader, secret)
	return req
}

func TestWebhookRejectsBadSecretWithHTTP200(t *testing.T) {
	h, sender, _ := newTestWebhook(t, &stubMerchants{}, &stubCustomers{}, &stubVerification{})

	rec := httptest.NewRecorder()
	h.Handle(rec, updateRequest("wrong", "budi_tg", "/start", 42))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid secret token")
	assert.Empty(t, sender.texts)
}

func TestWebhookStart(t *testing.T) {
	h, sender, _ := newTestWebhook(t, &stubMerchants{}, &stubCustomers{}, &stubVerification{})

	rec := httptest.NewRecorder()
	h.Handle(rec, updateRequest(webhookSecret, "budi_tg", "/start", 42))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{msgWelcome}, sender.texts)
	assert.Equal(t, []int64{42}, sender.chatIDs)
}

func TestWebhookConnectSetsStateAndAsksForCode(t *testing.T) {
	h, sender, state := newTestWebhook(t, &stubMerchants{}, &stubCustomers{}, &stubVerification{})

	rec := httptest.NewRecorder()
	h.Handle(rec, updateRequest(webhookSecret, "budi_tg", "/connect", 42))

	assert.Equal(t, []string{msgAskCode}, sender.texts)
	connecting, err := state.IsConnecting(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, connecting)
}

func TestWebhookClear(t *testing.T) {
	h, sender, state := newTestWebhook(t, &stubMerchants{}, &stubCustomers{}, &stubVerification{})
	require.NoError(t, state.SetConnecting(context.Background(), 42))

	rec := httptest.NewRecorder()
	h.Handle(rec, updateRequest(webhookSecret, "budi_tg", "/clear", 42))

	assert.Equal(t, []string{msgCleared}, sender.texts)
	connecting, err := state.IsConnecting(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, connecting)
}

func TestWebhookIgnoresFreeTextWithoutConnectState(t *testing.T) {
	merchantStore := &stubMerchants{}
	h, sender, _ := newTestWebhook(t, merchantStore, &stubCustomers{}, &stubVerification{})

	rec := httptest.NewRecorder()
	h.Handle(rec, updateRequest(webhookSecret, "budi_tg", "hello there", 42))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sender.texts)
	assert.Empty(t, merchantStore.codes)
}

func TestWebhookInvalidMerchantCode(t *testing.T) {
	merchantStore := &stubMerchants{err: errors.New("not found")}
	h, sender, state := newTestWebhook(t, merchantStore, &stubCustomers{}, &stubVerification{})
	require.NoError(t, state.SetConnecting(context.Background(), 42))

	rec := httptest.NewRecorder()
	h.Handle(rec, updateRequest(webhookSecret, "budi_tg", "WARUNG1", 42))

	assert.Equal(t, []string{msgInvalidCode}, sender.texts)
	// Codes are matched lowercased.
	assert.Equal(t, []string{"warung1"}, merchantStore.codes)
}

func TestWebhookUnregisteredUsername(t *testing.T) {
	merchantStore := &stubMerchants{merchant: merchants.Merchant{ID: uuid.New()}}
	customerStore := &stubCustomers{err: customers.ErrContactNotFound}
	h, sender, state := newTestWebhook(t, merchantStore, customerStore, &stubVerification{})
	require.NoError(t, state.SetConnecting(context.Background(), 42))

	rec := httptest.NewRecorder()
	h.Handle(rec, updateRequest(webhookSecret, "ghost_tg", "warung1", 42))

	assert.Equal(t, []string{msgNotRegistered}, sender.texts)
	assert.Equal(t, []string{"ghost_tg"}, customerStore.usernames)
}

func TestWebhookRegistersCustomer(t *testing.T) {
	customerID := uuid.New()
	contactID := uuid.New()
	merchantStore := &stubMerchants{merchant: merchants.Merchant{ID: uuid.New()}}
	customerStore := &stubCustomers{
		customer: customers.Customer{ID: customerID},
		contact:  customers.CustomerContactChannel{ID: contactID, Value: "budi_tg"},
	}
	verification := &stubVerification{}
	h, sender, state := newTestWebhook(t, merchantStore, customerStore, verification)
	require.NoError(t, state.SetConnecting(context.Background(), 42))

	rec := httptest.NewRecorder()
	h.Handle(rec, updateRequest(webhookSecret, "budi_tg", "warung1", 42))

	assert.Equal(t, []string{msgRegistered}, sender.texts)
	assert.Equal(t, []uuid.UUID{customerID}, verification.customerIDs)
	assert.Equal(t, []string{"42"}, verification.values)
	assert.Equal(t, []string{"42"}, customerStore.additionalValues)

	connecting, err := state.IsConnecting(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, connecting)
}

func TestWebhookEmptyUpdateIsOK(t *testing.T) {
	h, sender, _ := newTestWebhook(t, &stubMerchants{}, &stubCustomers{}, &stubVerification{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{}`))
	req.Header.Set(secretHeader, webhookSecret)
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sender.texts)
}
