package scheduler

import (
	"fmt"
	"math/rand"
	"time"
)

// invoiceTemplates are the fixed invoice message bodies. Each has exactly
// four slots filled in order with merchant name, formatted total, payment
// URL and due time.
var invoiceTemplates = []string{
	"Hello! %s sent you an invoice of %s. Please complete the payment here %s before %s.",
	"Hi there, you have a new invoice from %s totalling %s. Pay at %s by %s.",
	"%s has billed you %s. Settle it via %s before %s.",
	"New invoice from %s for %s. Payment link: %s. Due %s.",
	"Greetings! %s requests a payment of %s. Use %s to pay before %s.",
	"%s just issued you an invoice of %s. Follow %s to complete it by %s.",
	"You have an outstanding invoice from %s worth %s. Pay here %s before %s.",
	"Friendly reminder: %s invoiced you %s. Complete the payment at %s by %s.",
	"Invoice alert from %s, amount %s. Your payment link is %s, due %s.",
	"Please note, %s has sent an invoice of %s. Pay through %s before %s.",
}

const reminderTemplate = "%s here, we have a message for you \"%s\", \"%s\"."

const dueTimeLayout = "02/01/2006 - 15:04"

// Composer builds outbound message bodies. The template pick is random in
// production; tests inject a deterministic picker.
type Composer struct {
	pick func(n int) int
	now  func() time.Time
}

func NewComposer() *Composer {
	return &Composer{pick: rand.Intn, now: time.Now}
}

// WithPicker overrides the template chooser.
func (c *Composer) WithPicker(pick func(n int) int) *Composer {
	c.pick = pick
	return c
}

// WithClock overrides the time source.
func (c *Composer) WithClock(now func() time.Time) *Composer {
	c.now = now
	return c
}

// Invoice renders an invoice body with the payment deadline set 24 hours
// out. The total is formatted as rupiah.
func (c *Composer) Invoice(merchantName string, totalAmount int64, paymentURL string) string {
	template := invoiceTemplates[c.pick(len(invoiceTemplates))]
	total := fmt.Sprintf("Rp%.2f", float64(totalAmount))
	due := c.now().Add(24 * time.Hour).Format(dueTimeLayout)
	return fmt.Sprintf(template, merchantName, total, paymentURL, due)
}

// Reminder renders a reminder body from the payload fields alone.
func (c *Composer) Reminder(merchantName, title, description string) string {
	return fmt.Sprintf(reminderTemplate, merchantName, title, description)
}
