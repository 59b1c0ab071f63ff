package verification

import (
	"time"

	"github.com/google/uuid"
)

// Statuses of a verification row.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
)

// codeTTL is how long a verification link stays valid.
const codeTTL = 5 * time.Minute

// Verification is a single-use code bound to either a user or a customer.
type Verification struct {
	ID         uuid.UUID  `json:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	Code       string     `json:"code"`
	Status     string     `json:"status"`
	ExpiredAt  time.Time  `json:"expired_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsExpired reports whether the link has lapsed at now.
func (v Verification) IsExpired(now time.Time) bool {
	return now.After(v.ExpiredAt)
}
