package verification

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/inving/dispatch/pkg/logging"
)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const codeLength = 6

// Channel sender surfaces the service fans verification links out over.
type (
	emailSender interface {
		Send(ctx context.Context, to, subject, body string) error
	}
	whatsappSender interface {
		Send(ctx context.Context, number, message string) error
	}
	telegramSender interface {
		Send(ctx context.Context, chatID int64, text string) error
	}
)

// Service creates verification rows and delivers the landing link.
type Service struct {
	store    *Store
	email    emailSender
	whatsapp whatsappSender
	telegram telegramSender
	host     string
	logger   *logging.Logger
	code     func() string
	now      func() time.Time
}

func NewService(store *Store, email emailSender, whatsapp whatsappSender, telegram telegramSender, host string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:    store,
		email:    email,
		whatsapp: whatsapp,
		telegram: telegram,
		host:     host,
		logger:   logger,
		code:     randomCode,
		now:      time.Now,
	}
}

// WithCodeGenerator overrides the code source. Used by tests.
func (s *Service) WithCodeGenerator(code func() string) *Service {
	s.code = code
	return s
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func randomCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(buf)
}

// Link renders the landing URL for a verification row.
func (s *Service) Link(v Verification) string {
	return fmt.Sprintf("http://%s/verify?code=%s&id=%s", s.host, v.Code, v.ID)
}

// Setup creates a verification for a user or customer and sends the landing
// link over the given channel. For telegram, value is the chat id.
func (s *Service) Setup(ctx context.Context, userID, customerID *uuid.UUID, channel, value string) error {
	v, err := s.store.Create(ctx, userID, customerID, s.code(), s.now())
	if err != nil {
		return err
	}

	link := s.Link(v)
	message := fmt.Sprintf("Please verify your contact by visiting %s. The link expires in 5 minutes.", link)

	switch channel {
	case "email":
		err = s.email.Send(ctx, value, "Verify your contact", message)
	case "whatsapp":
		err = s.whatsapp.Send(ctx, value, message)
	case "telegram":
		chatID, parseErr := strconv.ParseInt(value, 10, 64)
		if parseErr != nil {
			return fmt.Errorf("verification: telegram chat id %q: %w", value, parseErr)
		}
		err = s.telegram.Send(ctx, chatID, message)
	default:
		return fmt.Errorf("verification: unknown channel %q", channel)
	}
	if err != nil {
		return fmt.Errorf("verification: send link over %s: %w", channel, err)
	}

	s.logger.Info("verification link sent",
		"verification_id", v.ID, "channel", channel)
	return nil
}
