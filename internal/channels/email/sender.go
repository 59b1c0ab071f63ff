package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/inving/dispatch/internal/channels"
)

// Sender address is fixed to the verification-branded identity; merchants
// never send from their own domain.
const (
	fromName  = "Verification"
	fromEmail = "hello@inving.co"
)

// Sender delivers email through SendGrid.
type Sender struct {
	client sendClient
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// NewSender creates a SendGrid-backed email sender.
func NewSender(apiKey string) *Sender {
	return &Sender{client: sendgrid.NewSendClient(apiKey)}
}

// Send delivers a plain-text email to the recipient address.
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	from := mail.NewEmail(fromName, fromEmail)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, recipient, body, body)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return channels.Error{Channel: "email", Value: to, Message: err.Error()}
	}
	if resp.StatusCode >= 400 {
		return channels.Error{
			Channel: "email",
			Value:   to,
			Message: fmt.Sprintf("sendgrid returned status %d", resp.StatusCode),
		}
	}
	return nil
}
