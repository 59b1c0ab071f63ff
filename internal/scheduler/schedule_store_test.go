package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

var scheduleRowColumns = []string{
	"id", "job_type", "job_data", "run_at", "repeat_interval_seconds",
	"repeat_count", "remaining", "status", "created_at", "updated_at",
}

func scheduleRow(id uuid.UUID, jobType, status string, runAt time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(scheduleRowColumns).
		AddRow(id, jobType, []byte(`{}`), runAt, nil, nil, nil, status, runAt, runAt)
}

func TestScheduleStoreCreateReminder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewScheduleStore(mock)
	now := time.Now()
	plan := Recurrence{RunAt: now.Add(5 * time.Second), RepeatInterval: 5, RepeatCount: 0}
	data := JobData{
		CustomerID:   uuid.New(),
		CustomerName: "Budi",
		MerchantID:   uuid.New(),
		MerchantName: "Warung",
		CreatedBy:    uuid.New(),
		Title:        "Hi",
	}

	mock.ExpectQuery("INSERT INTO job_schedules").
		WithArgs(JobSendReminder, pgxmock.AnyArg(), plan.RunAt, plan.RepeatInterval, plan.RepeatCount, StatusScheduled).
		WillReturnRows(scheduleRow(uuid.New(), JobSendReminder, StatusScheduled, plan.RunAt))

	if _, err := store.Create(context.Background(), JobSendReminder, data, plan); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
}

func TestScheduleStoreCreateRejectsOpenInvoiceSchedule(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewScheduleStore(mock)
	invoiceID := uuid.New()
	data := JobData{
		CustomerID:   uuid.New(),
		CustomerName: "Budi",
		MerchantID:   uuid.New(),
		MerchantName: "Warung",
		CreatedBy:    uuid.New(),
		InvoiceID:    &invoiceID,
	}

	mock.ExpectQuery("SELECT (.+) FROM job_schedules").
		WithArgs("invoice_id", invoiceID.String()).
		WillReturnRows(scheduleRow(uuid.New(), JobSendInvoice, StatusScheduled, time.Now()))

	_, err = store.Create(context.Background(), JobSendInvoice, data, Recurrence{RunAt: time.Now()})
	if !errors.Is(err, ErrAlreadyScheduled) {
		t.Fatalf("expected ErrAlreadyScheduled, got %v", err)
	}
}

func TestScheduleStoreCreateAllowsRescheduleAfterTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewScheduleStore(mock)
	invoiceID := uuid.New()
	data := JobData{
		CustomerID:   uuid.New(),
		CustomerName: "Budi",
		MerchantID:   uuid.New(),
		MerchantName: "Warung",
		CreatedBy:    uuid.New(),
		InvoiceID:    &invoiceID,
	}
	plan := Recurrence{RunAt: time.Now(), RepeatInterval: 5}

	mock.ExpectQuery("SELECT (.+) FROM job_schedules").
		WithArgs("invoice_id", invoiceID.String()).
		WillReturnRows(scheduleRow(uuid.New(), JobSendInvoice, StatusCanceled, time.Now()))
	mock.ExpectQuery("INSERT INTO job_schedules").
		WithArgs(JobSendInvoice, pgxmock.AnyArg(), plan.RunAt, plan.RepeatInterval, plan.RepeatCount, StatusScheduled).
		WillReturnRows(scheduleRow(uuid.New(), JobSendInvoice, StatusScheduled, plan.RunAt))

	if _, err := store.Create(context.Background(), JobSendInvoice, data, plan); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
}

func TestScheduleStoreGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewScheduleStore(mock)
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM job_schedules").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetByID(context.Background(), id)
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestScheduleStoreScanDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewScheduleStore(mock)
	now := time.Now()
	rows := pgxmock.NewRows(scheduleRowColumns).
		AddRow(uuid.New(), JobSendInvoice, []byte(`{}`), now.Add(-time.Minute), nil, nil, nil, StatusScheduled, now, now).
		AddRow(uuid.New(), JobSendReminder, []byte(`{}`), now.Add(-time.Second), nil, nil, nil, StatusPending, now, now)
	mock.ExpectQuery("SELECT (.+) FROM job_schedules").
		WithArgs([]string{StatusScheduled, StatusPending, StatusInProgress}, now).
		WillReturnRows(rows)

	due, err := store.ScanDue(context.Background(), now)
	if err != nil {
		t.Fatalf("scan due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due schedules, got %d", len(due))
	}
}

func TestScheduleStoreTransition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewScheduleStore(mock)
	id := uuid.New()
	mock.ExpectExec("UPDATE job_schedules").
		WithArgs(StatusPending, id, scheduleTransitions[StatusPending]).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := store.Transition(context.Background(), id, StatusPending); err != nil {
		t.Fatalf("transition: %v", err)
	}
}

func TestScheduleStoreTransitionRejectsDisallowedPrior(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewScheduleStore(mock)
	id := uuid.New()
	// A completed row matches no allowed prior status, so the conditional
	// update touches nothing.
	mock.ExpectExec("UPDATE job_schedules").
		WithArgs(StatusCompleted, id, scheduleTransitions[StatusCompleted]).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Transition(context.Background(), id, StatusCompleted)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestScheduleStoreTransitionUnknownTarget(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewScheduleStore(mock)
	err = store.Transition(context.Background(), uuid.New(), "exploded")
	if !errors.Is(err, ErrUnknownTargetStatus) {
		t.Fatalf("expected ErrUnknownTargetStatus, got %v", err)
	}
}

func TestScheduleStoreLookupByJobData(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewScheduleStore(mock)
	merchantID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM job_schedules").
		WithArgs("merchant_id", merchantID.String()).
		WillReturnRows(scheduleRow(uuid.New(), JobSendReminder, StatusScheduled, time.Now()))

	out, err := store.ListByMerchant(context.Background(), merchantID)
	if err != nil {
		t.Fatalf("list by merchant: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 schedule, got %d", len(out))
	}
}
