package merchants

import (
	"time"

	"github.com/google/uuid"
)

// Merchant is a tenant owned by exactly one user. MerchantCode is the short
// case-insensitive identifier customers type into the Telegram bot.
type Merchant struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	UserID       uuid.UUID  `json:"user_id"`
	Address      *string    `json:"address,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	Tax          *float64   `json:"tax,omitempty"`
	MerchantCode string     `json:"merchant_code"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}
