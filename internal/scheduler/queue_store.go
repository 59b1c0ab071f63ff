package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inving/dispatch/internal/postgres"
)

// ErrNoWork signals an empty queue to the dispatcher tick.
var ErrNoWork = errors.New("scheduler: no queued work")

var ErrQueueNotFound = errors.New("scheduler: queue row not found")

// QueueStore persists individual dispatch attempts.
type QueueStore struct {
	db postgres.DB
}

func NewQueueStore(db postgres.DB) *QueueStore {
	return &QueueStore{db: db}
}

const queueColumns = `id, job_type, job_data, job_schedule_id, priority, status, created_at, updated_at`

func scanQueue(row pgx.Row) (JobQueue, error) {
	var q JobQueue
	err := row.Scan(&q.ID, &q.JobType, &q.JobData, &q.JobScheduleID,
		&q.Priority, &q.Status, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

// Create inserts a pending queue row for a schedule.
func (s *QueueStore) Create(ctx context.Context, schedule JobSchedule, priority int32) (JobQueue, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO job_queues (job_type, job_data, job_schedule_id, priority, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+queueColumns,
		schedule.JobType, schedule.JobData, schedule.ID, priority, StatusPending)
	q, err := scanQueue(row)
	if err != nil {
		return JobQueue{}, fmt.Errorf("scheduler: create queue row: %w", err)
	}
	return q, nil
}

// ClaimTop returns the most urgent open queue row: smallest priority, ties
// broken by oldest created_at, among pending, failed and in_progress rows.
func (s *QueueStore) ClaimTop(ctx context.Context) (JobQueue, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM job_queues
		WHERE status = ANY($1)
		ORDER BY priority ASC, created_at ASC
		LIMIT 1`,
		[]string{StatusPending, StatusFailed, StatusInProgress})
	q, err := scanQueue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobQueue{}, ErrNoWork
	}
	if err != nil {
		return JobQueue{}, fmt.Errorf("scheduler: claim top: %w", err)
	}
	return q, nil
}

// Transition moves a queue row to the target status with a conditional
// update keyed on the allowed prior statuses, so concurrent dispatchers
// serialize on the claim.
func (s *QueueStore) Transition(ctx context.Context, id uuid.UUID, to string) error {
	allowed, ok := queueTransitions[to]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTargetStatus, to)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE job_queues
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)`,
		to, id, allowed)
	if err != nil {
		return fmt.Errorf("scheduler: transition queue row to %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: queue %s -> %s", ErrInvalidTransition, id, to)
	}
	return nil
}

// OpenCountForSchedule counts the open queue rows bound to a schedule. The
// enqueuer skips schedules that still have one.
func (s *QueueStore) OpenCountForSchedule(ctx context.Context, scheduleID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM job_queues
		WHERE job_schedule_id = $1 AND status = ANY($2)`,
		scheduleID, []string{StatusPending, StatusFailed, StatusInProgress}).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("scheduler: open count for schedule: %w", err)
	}
	return n, nil
}

// CancelByInvoice cancels every open queue row whose payload references the
// invoice and creator pair.
func (s *QueueStore) CancelByInvoice(ctx context.Context, invoiceID, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE job_queues
		SET status = $1, updated_at = now()
		WHERE job_data ->> 'invoice_id' = $2
		  AND job_data ->> 'created_by' = $3
		  AND status = ANY($4)`,
		StatusCanceled, invoiceID.String(), userID.String(),
		[]string{StatusPending, StatusFailed, StatusInProgress})
	if err != nil {
		return fmt.Errorf("scheduler: cancel by invoice: %w", err)
	}
	return nil
}
