package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComposerInvoiceDeterministic(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	c := NewComposer().
		WithPicker(func(int) int { return 0 }).
		WithClock(func() time.Time { return now })

	got := c.Invoice("Warung Sejahtera", 111000, "https://pay.example/abc")

	want := fmt.Sprintf(invoiceTemplates[0],
		"Warung Sejahtera", "Rp111000.00", "https://pay.example/abc", "02/03/2025 - 10:30")
	assert.Equal(t, want, got)
	assert.Contains(t, got, "https://pay.example/abc")
}

func TestComposerInvoiceTemplateSlots(t *testing.T) {
	now := time.Now()
	for i := range invoiceTemplates {
		i := i
		c := NewComposer().
			WithPicker(func(int) int { return i }).
			WithClock(func() time.Time { return now })
		got := c.Invoice("M", 1000, "URL")
		assert.Contains(t, got, "M")
		assert.Contains(t, got, "Rp1000.00")
		assert.Contains(t, got, "URL")
		assert.NotContains(t, got, "%s")
	}
}

func TestComposerReminder(t *testing.T) {
	c := NewComposer()
	got := c.Reminder("Warung Sejahtera", "Hi", "Check in")
	assert.Equal(t, `Warung Sejahtera here, we have a message for you "Hi", "Check in".`, got)
}
