package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobData is the denormalized payload a queue row carries so dispatch needs
// no further joins. Invoice jobs set InvoiceID and InvoiceDate; reminder
// jobs set Title and Description.
type JobData struct {
	CustomerID   uuid.UUID  `json:"customer_id"`
	CustomerName string     `json:"customer_name"`
	MerchantID   uuid.UUID  `json:"merchant_id"`
	MerchantName string     `json:"merchant_name"`
	CreatedBy    uuid.UUID  `json:"created_by"`
	InvoiceID    *uuid.UUID `json:"invoice_id,omitempty"`
	InvoiceDate  *time.Time `json:"invoice_date,omitempty"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
}

var ErrMalformedJobData = errors.New("scheduler: malformed job data")

// ParseJobData decodes and validates the payload of a queue row or
// schedule. The dispatch-critical fields must all be present.
func ParseJobData(raw json.RawMessage) (JobData, error) {
	if len(raw) == 0 {
		return JobData{}, ErrMalformedJobData
	}
	var data JobData
	if err := json.Unmarshal(raw, &data); err != nil {
		return JobData{}, fmt.Errorf("%w: %v", ErrMalformedJobData, err)
	}
	if data.CustomerID == uuid.Nil || data.MerchantID == uuid.Nil || data.MerchantName == "" {
		return JobData{}, ErrMalformedJobData
	}
	return data, nil
}

// Encode marshals the payload for storage.
func (d JobData) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("scheduler: encode job data: %w", err)
	}
	return raw, nil
}
