package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inving/dispatch/internal/invoices"
	"github.com/inving/dispatch/internal/observability/metrics"
	"github.com/inving/dispatch/pkg/logging"
)

// enqueuerScheduleStore is the schedule surface the enqueuer needs.
type enqueuerScheduleStore interface {
	ScanDue(ctx context.Context, now time.Time) ([]JobSchedule, error)
	Transition(ctx context.Context, id uuid.UUID, to string) error
	SetJobData(ctx context.Context, id uuid.UUID, data json.RawMessage) error
}

// enqueuerQueueStore is the queue surface the enqueuer needs.
type enqueuerQueueStore interface {
	Create(ctx context.Context, schedule JobSchedule, priority int32) (JobQueue, error)
	OpenCountForSchedule(ctx context.Context, scheduleID uuid.UUID) (int64, error)
}

// invoicePreparer loads and patches invoices during promotion.
type invoicePreparer interface {
	GetByIDOnly(ctx context.Context, id uuid.UUID) (invoices.Invoice, error)
	SetInvoiceDate(ctx context.Context, id uuid.UUID, date time.Time) error
	SetPaymentPayload(ctx context.Context, id uuid.UUID, payload json.RawMessage) error
}

// paymentLinkCreator creates a payment link at the provider.
type paymentLinkCreator interface {
	CreateInvoice(ctx context.Context, externalID string, amount int64, description string) (json.RawMessage, error)
}

// Enqueuer promotes due schedules into queue rows, preparing invoice jobs
// with a fresh payment link first.
type Enqueuer struct {
	schedules enqueuerScheduleStore
	queue     enqueuerQueueStore
	invoices  invoicePreparer
	payments  paymentLinkCreator
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
	interval  time.Duration
	now       func() time.Time
}

func NewEnqueuer(schedules enqueuerScheduleStore, queue enqueuerQueueStore, invoices invoicePreparer, payments paymentLinkCreator, interval time.Duration, logger *logging.Logger) *Enqueuer {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Enqueuer{
		schedules: schedules,
		queue:     queue,
		invoices:  invoices,
		payments:  payments,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// WithMetrics attaches pipeline counters.
func (e *Enqueuer) WithMetrics(m *metrics.PipelineMetrics) *Enqueuer {
	e.metrics = m
	return e
}

// WithClock overrides the time source. Used by tests.
func (e *Enqueuer) WithClock(now func() time.Time) *Enqueuer {
	e.now = now
	return e
}

// Run ticks until the context is canceled.
func (e *Enqueuer) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("enqueuer started", "interval", e.interval.String())
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("enqueuer stopped")
			return
		case <-ticker.C:
			if _, err := e.ProcessDue(ctx); err != nil {
				e.logger.Error("enqueuer tick failed", "error", err)
			}
		}
	}
}

// ProcessDue promotes every due schedule. Per-schedule failures are logged
// and skipped so one bad row cannot starve the rest. Returns the number of
// queue rows created.
func (e *Enqueuer) ProcessDue(ctx context.Context) (int, error) {
	due, err := e.schedules.ScanDue(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("scheduler: scan due schedules: %w", err)
	}

	promoted := 0
	for i := range due {
		ok, err := e.promote(ctx, &due[i])
		if err != nil {
			e.logger.Error("promote schedule failed",
				"schedule_id", due[i].ID, "job_type", due[i].JobType, "error", err)
			continue
		}
		if ok {
			promoted++
		}
	}
	return promoted, nil
}

// promote moves one schedule to pending and creates its queue row. It
// reports false without error when the schedule was skipped because an
// open queue row already exists.
func (e *Enqueuer) promote(ctx context.Context, schedule *JobSchedule) (bool, error) {
	if err := e.schedules.Transition(ctx, schedule.ID, StatusPending); err != nil {
		return false, err
	}

	open, err := e.queue.OpenCountForSchedule(ctx, schedule.ID)
	if err != nil {
		return false, err
	}
	if open > 0 {
		e.metrics.ObserveEnqueued(schedule.JobType, "skipped")
		return false, nil
	}

	if schedule.JobType == JobSendInvoice {
		if err := e.prepareInvoice(ctx, schedule); err != nil {
			// Leave the schedule pending so a later tick retries.
			e.metrics.ObserveEnqueued(schedule.JobType, "prepare_failed")
			return false, err
		}
	}

	if _, err := e.queue.Create(ctx, *schedule, PriorityFor(schedule.JobType)); err != nil {
		return false, err
	}
	e.metrics.ObserveEnqueued(schedule.JobType, "enqueued")
	e.logger.Info("schedule promoted",
		"schedule_id", schedule.ID, "job_type", schedule.JobType)
	return true, nil
}

// prepareInvoice refreshes the invoice date, creates the payment link and
// stores the provider payload on the invoice row, patching the schedule
// payload with the new date.
func (e *Enqueuer) prepareInvoice(ctx context.Context, schedule *JobSchedule) error {
	data, err := ParseJobData(schedule.JobData)
	if err != nil {
		return err
	}
	if data.InvoiceID == nil {
		return fmt.Errorf("%w: invoice job without invoice_id", ErrMalformedJobData)
	}

	invoice, err := e.invoices.GetByIDOnly(ctx, *data.InvoiceID)
	if err != nil {
		return fmt.Errorf("scheduler: load invoice: %w", err)
	}

	now := e.now()
	if err := e.invoices.SetInvoiceDate(ctx, invoice.ID, now); err != nil {
		return err
	}
	data.InvoiceDate = &now
	raw, err := data.Encode()
	if err != nil {
		return err
	}
	if err := e.schedules.SetJobData(ctx, schedule.ID, raw); err != nil {
		return err
	}
	schedule.JobData = raw

	payload, err := e.payments.CreateInvoice(ctx, invoice.InvoiceNumber, invoice.TotalAmount, invoice.Summary())
	if err != nil {
		return fmt.Errorf("scheduler: create payment link: %w", err)
	}
	if err := e.invoices.SetPaymentPayload(ctx, invoice.ID, payload); err != nil {
		return err
	}
	return nil
}
