package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inving/dispatch/internal/postgres"
)

var (
	ErrScheduleNotFound    = errors.New("scheduler: schedule not found")
	ErrInvalidTransition   = errors.New("scheduler: invalid status transition")
	ErrAlreadyScheduled    = errors.New("scheduler: invoice already has an open schedule")
	ErrUnknownTargetStatus = errors.New("scheduler: unknown target status")
)

// ScheduleStore persists job schedules and enforces their state machine at
// write time with conditional updates.
type ScheduleStore struct {
	db postgres.DB
}

func NewScheduleStore(db postgres.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

const scheduleColumns = `id, job_type, job_data, run_at, repeat_interval_seconds,
	repeat_count, remaining, status, created_at, updated_at`

func scanSchedule(row pgx.Row) (JobSchedule, error) {
	var s JobSchedule
	err := row.Scan(&s.ID, &s.JobType, &s.JobData, &s.RunAt, &s.RepeatInterval,
		&s.RepeatCount, &s.Remaining, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Create inserts a schedule in status scheduled. For send_invoice jobs it
// first checks that no non-terminal schedule is bound to the same invoice.
func (s *ScheduleStore) Create(ctx context.Context, jobType string, jobData JobData, plan Recurrence) (JobSchedule, error) {
	if jobType == JobSendInvoice && jobData.InvoiceID != nil {
		open, err := s.LookupByJobData(ctx, "invoice_id", jobData.InvoiceID.String())
		if err != nil {
			return JobSchedule{}, err
		}
		for _, existing := range open {
			if existing.Status != StatusCompleted && existing.Status != StatusCanceled {
				return JobSchedule{}, ErrAlreadyScheduled
			}
		}
	}

	raw, err := jobData.Encode()
	if err != nil {
		return JobSchedule{}, err
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO job_schedules (job_type, job_data, run_at,
			repeat_interval_seconds, repeat_count, remaining, status)
		VALUES ($1, $2, $3, $4, $5, $5, $6)
		RETURNING `+scheduleColumns,
		jobType, raw, plan.RunAt, plan.RepeatInterval, plan.RepeatCount, StatusScheduled)
	schedule, err := scanSchedule(row)
	if err != nil {
		return JobSchedule{}, fmt.Errorf("scheduler: create schedule: %w", err)
	}
	return schedule, nil
}

// GetByID loads a schedule.
func (s *ScheduleStore) GetByID(ctx context.Context, id uuid.UUID) (JobSchedule, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM job_schedules
		WHERE id = $1`,
		id)
	schedule, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobSchedule{}, ErrScheduleNotFound
	}
	if err != nil {
		return JobSchedule{}, fmt.Errorf("scheduler: get schedule: %w", err)
	}
	return schedule, nil
}

// ScanDue returns open schedules whose run_at has passed, oldest first.
func (s *ScheduleStore) ScanDue(ctx context.Context, now time.Time) ([]JobSchedule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM job_schedules
		WHERE status = ANY($1) AND run_at <= $2
		ORDER BY run_at ASC`,
		[]string{StatusScheduled, StatusPending, StatusInProgress}, now)
	if err != nil {
		return nil, fmt.Errorf("scheduler: scan due: %w", err)
	}
	defer rows.Close()

	var out []JobSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduler: scan due row: %w", err)
		}
		out = append(out, schedule)
	}
	return out, rows.Err()
}

// Transition moves a schedule to the target status. The update is keyed on
// the allowed prior statuses so a row that raced into another state, or a
// terminal row, is left untouched and the call fails.
func (s *ScheduleStore) Transition(ctx context.Context, id uuid.UUID, to string) error {
	allowed, ok := scheduleTransitions[to]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTargetStatus, to)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE job_schedules
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)`,
		to, id, allowed)
	if err != nil {
		return fmt.Errorf("scheduler: transition schedule to %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: schedule %s -> %s", ErrInvalidTransition, id, to)
	}
	return nil
}

// SetRunAt moves the next execution time.
func (s *ScheduleStore) SetRunAt(ctx context.Context, id uuid.UUID, t time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE job_schedules
		SET run_at = $1, updated_at = now()
		WHERE id = $2`,
		t, id)
	if err != nil {
		return fmt.Errorf("scheduler: set run_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// SetRemaining rewrites the recurrence counter.
func (s *ScheduleStore) SetRemaining(ctx context.Context, id uuid.UUID, n int32) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE job_schedules
		SET remaining = $1, updated_at = now()
		WHERE id = $2`,
		n, id)
	if err != nil {
		return fmt.Errorf("scheduler: set remaining: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// SetJobData replaces the schedule payload.
func (s *ScheduleStore) SetJobData(ctx context.Context, id uuid.UUID, data json.RawMessage) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE job_schedules
		SET job_data = $1, updated_at = now()
		WHERE id = $2`,
		data, id)
	if err != nil {
		return fmt.Errorf("scheduler: set job data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// LookupByJobData finds schedules whose payload has key == value.
func (s *ScheduleStore) LookupByJobData(ctx context.Context, key, value string) ([]JobSchedule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM job_schedules
		WHERE job_data ->> $1 = $2`,
		key, value)
	if err != nil {
		return nil, fmt.Errorf("scheduler: lookup by job data: %w", err)
	}
	defer rows.Close()

	var out []JobSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduler: lookup row: %w", err)
		}
		out = append(out, schedule)
	}
	return out, rows.Err()
}

// ListByMerchant returns schedules whose payload references the merchant.
func (s *ScheduleStore) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]JobSchedule, error) {
	return s.LookupByJobData(ctx, "merchant_id", merchantID.String())
}
