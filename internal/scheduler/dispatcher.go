package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/inving/dispatch/internal/channels"
	"github.com/inving/dispatch/internal/customers"
	"github.com/inving/dispatch/internal/invoices"
	"github.com/inving/dispatch/internal/observability/metrics"
	"github.com/inving/dispatch/pkg/logging"
)

// dispatcherScheduleStore is the schedule surface the dispatcher needs.
type dispatcherScheduleStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (JobSchedule, error)
	Transition(ctx context.Context, id uuid.UUID, to string) error
	SetRunAt(ctx context.Context, id uuid.UUID, t time.Time) error
	SetRemaining(ctx context.Context, id uuid.UUID, n int32) error
}

// dispatcherQueueStore is the queue surface the dispatcher needs.
type dispatcherQueueStore interface {
	ClaimTop(ctx context.Context) (JobQueue, error)
	Transition(ctx context.Context, id uuid.UUID, to string) error
}

// contactResolver returns a customer's channels for fan-out.
type contactResolver interface {
	ResolveContacts(ctx context.Context, customerID, merchantID uuid.UUID) ([]customers.ResolvedContact, error)
}

// invoiceLoader reads the invoice row the composer needs.
type invoiceLoader interface {
	GetByIDOnly(ctx context.Context, id uuid.UUID) (invoices.Invoice, error)
}

// Channel adapter surfaces, one per delivery channel.
type (
	whatsappSender interface {
		Send(ctx context.Context, number, message string) error
	}
	emailSender interface {
		Send(ctx context.Context, to, subject, body string) error
	}
	telegramSender interface {
		Send(ctx context.Context, chatID int64, text string) error
	}
)

// Dispatcher claims the most urgent queue row, resolves the customer's
// channels and fans the composed message out. Dispatch succeeds when at
// least one channel accepts the message.
type Dispatcher struct {
	schedules dispatcherScheduleStore
	queue     dispatcherQueueStore
	contacts  contactResolver
	invoices  invoiceLoader
	composer  *Composer
	whatsapp  whatsappSender
	email     emailSender
	telegram  telegramSender
	gate      *CronGate
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
	interval  time.Duration
	now       func() time.Time
}

func NewDispatcher(schedules dispatcherScheduleStore, queue dispatcherQueueStore, contacts contactResolver, invoiceLoader invoiceLoader, composer *Composer, interval time.Duration, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	if composer == nil {
		composer = NewComposer()
	}
	return &Dispatcher{
		schedules: schedules,
		queue:     queue,
		contacts:  contacts,
		invoices:  invoiceLoader,
		composer:  composer,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// WithChannels attaches the delivery adapters.
func (d *Dispatcher) WithChannels(whatsapp whatsappSender, email emailSender, telegram telegramSender) *Dispatcher {
	d.whatsapp = whatsapp
	d.email = email
	d.telegram = telegram
	return d
}

// WithGate attaches the cron send window.
func (d *Dispatcher) WithGate(gate *CronGate) *Dispatcher {
	d.gate = gate
	return d
}

// WithMetrics attaches pipeline counters.
func (d *Dispatcher) WithMetrics(m *metrics.PipelineMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithClock overrides the time source. Used by tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Run ticks until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "interval", d.interval.String())
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.ProcessNext(ctx); err != nil && !errors.Is(err, ErrNoWork) {
				d.logger.Error("dispatcher tick failed", "error", err)
			}
		}
	}
}

// ProcessNext claims and executes at most one queue row. Sends are limited
// to one dispatch per cron window when a gate is attached.
func (d *Dispatcher) ProcessNext(ctx context.Context) error {
	if d.gate != nil && !d.gate.Allow(d.now()) {
		return nil
	}

	job, err := d.queue.ClaimTop(ctx)
	if err != nil {
		return err
	}

	var schedule *JobSchedule
	closeOnComplete := true
	if job.JobScheduleID != nil {
		loaded, err := d.schedules.GetByID(ctx, *job.JobScheduleID)
		if err != nil {
			return err
		}
		if err := d.schedules.Transition(ctx, loaded.ID, StatusInProgress); err != nil {
			return err
		}
		schedule = &loaded

		// Recurrence is accounted before the send, matching the
		// at-least-once delivery contract.
		if schedule.RepeatInterval != nil && schedule.Remaining != nil && *schedule.Remaining > 0 {
			next := schedule.RunAt.Add(time.Duration(*schedule.RepeatInterval) * time.Second)
			if err := d.schedules.SetRunAt(ctx, schedule.ID, next); err != nil {
				return err
			}
			remaining := *schedule.Remaining - 1
			if err := d.schedules.SetRemaining(ctx, schedule.ID, remaining); err != nil {
				return err
			}
			schedule.RunAt = next
			schedule.Remaining = &remaining
			closeOnComplete = remaining == 0
		}
	}

	if err := d.queue.Transition(ctx, job.ID, StatusInProgress); err != nil {
		return err
	}

	data, err := ParseJobData(job.JobData)
	if err != nil {
		d.failJob(ctx, job, err)
		return nil
	}

	if err := d.fanOut(ctx, job, data); err != nil {
		d.failJob(ctx, job, err)
		return nil
	}

	if err := d.queue.Transition(ctx, job.ID, StatusCompleted); err != nil {
		return err
	}
	if schedule != nil {
		target := StatusScheduled
		if closeOnComplete {
			target = StatusCompleted
		}
		if err := d.schedules.Transition(ctx, schedule.ID, target); err != nil {
			return err
		}
	}
	d.metrics.ObserveDispatched(job.JobType, StatusCompleted)
	d.logger.Info("job dispatched", "queue_id", job.ID, "job_type", job.JobType)
	return nil
}

func (d *Dispatcher) failJob(ctx context.Context, job JobQueue, cause error) {
	d.metrics.ObserveDispatched(job.JobType, StatusFailed)
	d.logger.Error("job dispatch failed",
		"queue_id", job.ID, "job_type", job.JobType, "error", cause)
	if err := d.queue.Transition(ctx, job.ID, StatusFailed); err != nil {
		d.logger.Error("mark queue row failed", "queue_id", job.ID, "error", err)
	}
}

// fanOut composes the message and sends it over every resolved channel.
// Individual channel failures do not abort the rest; the dispatch succeeds
// when at least one channel accepted.
func (d *Dispatcher) fanOut(ctx context.Context, job JobQueue, data JobData) error {
	contacts, err := d.contacts.ResolveContacts(ctx, data.CustomerID, data.MerchantID)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		return fmt.Errorf("scheduler: customer %s has no contact channels", data.CustomerID)
	}

	message, subject, err := d.compose(ctx, job.JobType, data)
	if err != nil {
		return err
	}

	var (
		accepted int
		failures []channels.Error
	)
	for _, contact := range contacts {
		if err := d.sendOne(ctx, contact, subject, message); err != nil {
			var chErr channels.Error
			if !errors.As(err, &chErr) {
				chErr = channels.Error{Channel: contact.Name, Value: contact.Value, Message: err.Error()}
			}
			failures = append(failures, chErr)
			d.metrics.ObserveChannelSend(contact.Name, "failed")
			d.logger.Error("channel send failed",
				"queue_id", job.ID, "channel", chErr.Channel, "value", chErr.Value, "message", chErr.Message)
			continue
		}
		accepted++
		d.metrics.ObserveChannelSend(contact.Name, "ok")
	}

	if accepted == 0 {
		return fmt.Errorf("scheduler: all channels failed: %v", failures)
	}
	return nil
}

func (d *Dispatcher) compose(ctx context.Context, jobType string, data JobData) (message, subject string, err error) {
	switch jobType {
	case JobSendInvoice:
		if data.InvoiceID == nil {
			return "", "", fmt.Errorf("%w: invoice job without invoice_id", ErrMalformedJobData)
		}
		invoice, err := d.invoices.GetByIDOnly(ctx, *data.InvoiceID)
		if err != nil {
			return "", "", fmt.Errorf("scheduler: load invoice: %w", err)
		}
		url, err := invoice.PaymentURL()
		if err != nil {
			return "", "", err
		}
		message = d.composer.Invoice(data.MerchantName, invoice.TotalAmount, url)
		subject = fmt.Sprintf("Invoice from %s", data.MerchantName)
		return message, subject, nil
	case JobSendReminder:
		message = d.composer.Reminder(data.MerchantName, data.Title, data.Description)
		return message, data.Title, nil
	default:
		return "", "", fmt.Errorf("scheduler: unknown job type %q", jobType)
	}
}

func (d *Dispatcher) sendOne(ctx context.Context, contact customers.ResolvedContact, subject, message string) error {
	switch contact.Name {
	case "whatsapp":
		if d.whatsapp == nil {
			return channels.Error{Channel: contact.Name, Value: contact.Value, Message: "adapter not configured"}
		}
		return d.whatsapp.Send(ctx, contact.Value, message)
	case "email":
		if d.email == nil {
			return channels.Error{Channel: contact.Name, Value: contact.Value, Message: "adapter not configured"}
		}
		return d.email.Send(ctx, contact.Value, subject, message)
	case "telegram":
		if d.telegram == nil {
			return channels.Error{Channel: contact.Name, Value: contact.Value, Message: "adapter not configured"}
		}
		if contact.AdditionalValue == nil || *contact.AdditionalValue == "" {
			return channels.Error{Channel: contact.Name, Value: contact.Value, Message: "no_additional_value"}
		}
		chatID, err := strconv.ParseInt(*contact.AdditionalValue, 10, 64)
		if err != nil {
			return channels.Error{Channel: contact.Name, Value: contact.Value, Message: "invalid chat id"}
		}
		return d.telegram.Send(ctx, chatID, message)
	default:
		return channels.Error{Channel: contact.Name, Value: contact.Value, Message: "unknown channel"}
	}
}
