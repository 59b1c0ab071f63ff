package customers

import (
	"time"

	"github.com/google/uuid"
)

// Customer belongs to a merchant and carries free-form tags used for
// reminder fan-out.
type Customer struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	MerchantID uuid.UUID  `json:"merchant_id"`
	Tags       []string   `json:"tags"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// ContactChannel is a row of the fixed reference set (email, whatsapp,
// telegram).
type ContactChannel struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// CustomerContactChannel binds a customer to a channel-specific address.
// AdditionalValue holds out-of-band data bound during onboarding, e.g. the
// Telegram chat id.
type CustomerContactChannel struct {
	ID               uuid.UUID `json:"id"`
	CustomerID       uuid.UUID `json:"customer_id"`
	ContactChannelID uuid.UUID `json:"contact_channel_id"`
	Value            string    `json:"value"`
	AdditionalValue  *string   `json:"additional_value,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CustomerWithContact is the list shape the merchant customer endpoints
// return: one row per (customer, contact channel) pair.
type CustomerWithContact struct {
	Customer
	ContactChannelID        uuid.UUID `json:"contact_channel_id"`
	ContactChannelName      string    `json:"contact_channel_name"`
	ContactChannelValue     string    `json:"contact_channel_value"`
	CustomerContactChannels uuid.UUID `json:"customer_contact_channel_id"`
}

// ResolvedContact is what the dispatcher fans out over: channel name plus
// the address material needed to send.
type ResolvedContact struct {
	Name            string
	Value           string
	AdditionalValue *string
}
