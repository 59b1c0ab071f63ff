package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inving/dispatch/internal/customers"
	"github.com/inving/dispatch/internal/invoices"
)

type fakeDispatchScheduleStore struct {
	schedules   map[uuid.UUID]*JobSchedule
	transitions map[uuid.UUID][]string
}

func newFakeDispatchScheduleStore(schedules ...*JobSchedule) *fakeDispatchScheduleStore {
	f := &fakeDispatchScheduleStore{
		schedules:   map[uuid.UUID]*JobSchedule{},
		transitions: map[uuid.UUID][]string{},
	}
	for _, s := range schedules {
		f.schedules[s.ID] = s
	}
	return f
}

func (f *fakeDispatchScheduleStore) GetByID(_ context.Context, id uuid.UUID) (JobSchedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return JobSchedule{}, ErrScheduleNotFound
	}
	return *s, nil
}

func (f *fakeDispatchScheduleStore) Transition(_ context.Context, id uuid.UUID, to string) error {
	f.transitions[id] = append(f.transitions[id], to)
	if s, ok := f.schedules[id]; ok {
		s.Status = to
	}
	return nil
}

func (f *fakeDispatchScheduleStore) SetRunAt(_ context.Context, id uuid.UUID, t time.Time) error {
	f.schedules[id].RunAt = t
	return nil
}

func (f *fakeDispatchScheduleStore) SetRemaining(_ context.Context, id uuid.UUID, n int32) error {
	f.schedules[id].Remaining = &n
	return nil
}

type fakeDispatchQueueStore struct {
	jobs        []JobQueue
	claimed     int
	transitions map[uuid.UUID][]string
}

func newFakeDispatchQueueStore(jobs ...JobQueue) *fakeDispatchQueueStore {
	return &fakeDispatchQueueStore{jobs: jobs, transitions: map[uuid.UUID][]string{}}
}

func (f *fakeDispatchQueueStore) ClaimTop(context.Context) (JobQueue, error) {
	if f.claimed >= len(f.jobs) {
		return JobQueue{}, ErrNoWork
	}
	job := f.jobs[f.claimed]
	f.claimed++
	return job, nil
}

func (f *fakeDispatchQueueStore) Transition(_ context.Context, id uuid.UUID, to string) error {
	f.transitions[id] = append(f.transitions[id], to)
	return nil
}

type fakeResolver struct {
	contacts []customers.ResolvedContact
}

func (f *fakeResolver) ResolveContacts(context.Context, uuid.UUID, uuid.UUID) ([]customers.ResolvedContact, error) {
	return f.contacts, nil
}

type fakeInvoiceLoader struct {
	invoice invoices.Invoice
}

func (f *fakeInvoiceLoader) GetByIDOnly(context.Context, uuid.UUID) (invoices.Invoice, error) {
	return f.invoice, nil
}

type recordingSender struct {
	err       error
	whatsapps []string
	emails    []string
	chatIDs   []int64
	messages  []string
	subjects  []string
}

func (r *recordingSender) Send(_ context.Context, number, message string) error {
	if r.err != nil {
		return r.err
	}
	r.whatsapps = append(r.whatsapps, number)
	r.messages = append(r.messages, message)
	return nil
}

type recordingEmailSender struct {
	err      error
	tos      []string
	subjects []string
	bodies   []string
}

func (r *recordingEmailSender) Send(_ context.Context, to, subject, body string) error {
	if r.err != nil {
		return r.err
	}
	r.tos = append(r.tos, to)
	r.subjects = append(r.subjects, subject)
	r.bodies = append(r.bodies, body)
	return nil
}

type recordingTelegramSender struct {
	err     error
	chatIDs []int64
	texts   []string
}

func (r *recordingTelegramSender) Send(_ context.Context, chatID int64, text string) error {
	if r.err != nil {
		return r.err
	}
	r.chatIDs = append(r.chatIDs, chatID)
	r.texts = append(r.texts, text)
	return nil
}

func strPtr(s string) *string { return &s }

func queuedReminder(t *testing.T, schedule *JobSchedule) JobQueue {
	t.Helper()
	return JobQueue{
		ID:            uuid.New(),
		JobType:       schedule.JobType,
		JobData:       schedule.JobData,
		JobScheduleID: &schedule.ID,
		Priority:      PriorityFor(schedule.JobType),
		Status:        StatusPending,
	}
}

func TestDispatcherCompletesOneShot(t *testing.T) {
	schedule := reminderSchedule(t)
	schedule.Status = StatusPending
	schedules := newFakeDispatchScheduleStore(&schedule)
	job := queuedReminder(t, &schedule)
	queue := newFakeDispatchQueueStore(job)

	whatsapp := &recordingSender{}
	d := NewDispatcher(schedules, queue, &fakeResolver{contacts: []customers.ResolvedContact{
		{Name: "whatsapp", Value: "628123"},
	}}, &fakeInvoiceLoader{}, nil, time.Second, nil).
		WithChannels(whatsapp, &recordingEmailSender{}, &recordingTelegramSender{})

	require.NoError(t, d.ProcessNext(context.Background()))

	assert.Equal(t, []string{"628123"}, whatsapp.whatsapps)
	assert.Equal(t, []string{StatusInProgress, StatusCompleted}, queue.transitions[job.ID])
	assert.Equal(t, []string{StatusInProgress, StatusCompleted}, schedules.transitions[schedule.ID])
}

func TestDispatcherRevivesRecurringSchedule(t *testing.T) {
	schedule := reminderSchedule(t)
	schedule.Status = StatusPending
	runAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	interval := int64(86400)
	remaining := int32(3)
	schedule.RunAt = runAt
	schedule.RepeatInterval = &interval
	schedule.Remaining = &remaining

	schedules := newFakeDispatchScheduleStore(&schedule)
	job := queuedReminder(t, &schedule)
	queue := newFakeDispatchQueueStore(job)

	d := NewDispatcher(schedules, queue, &fakeResolver{contacts: []customers.ResolvedContact{
		{Name: "whatsapp", Value: "628123"},
	}}, &fakeInvoiceLoader{}, nil, time.Second, nil).
		WithChannels(&recordingSender{}, &recordingEmailSender{}, &recordingTelegramSender{})

	require.NoError(t, d.ProcessNext(context.Background()))

	// Advanced one interval and decremented, then put back to scheduled.
	assert.Equal(t, runAt.Add(24*time.Hour), schedule.RunAt)
	assert.Equal(t, int32(2), *schedule.Remaining)
	assert.Equal(t, []string{StatusInProgress, StatusScheduled}, schedules.transitions[schedule.ID])
}

func TestDispatcherClosesRecurringOnLastRun(t *testing.T) {
	schedule := reminderSchedule(t)
	schedule.Status = StatusPending
	interval := int64(3600)
	remaining := int32(1)
	schedule.RepeatInterval = &interval
	schedule.Remaining = &remaining

	schedules := newFakeDispatchScheduleStore(&schedule)
	queue := newFakeDispatchQueueStore(queuedReminder(t, &schedule))

	d := NewDispatcher(schedules, queue, &fakeResolver{contacts: []customers.ResolvedContact{
		{Name: "whatsapp", Value: "628123"},
	}}, &fakeInvoiceLoader{}, nil, time.Second, nil).
		WithChannels(&recordingSender{}, &recordingEmailSender{}, &recordingTelegramSender{})

	require.NoError(t, d.ProcessNext(context.Background()))

	assert.Equal(t, int32(0), *schedule.Remaining)
	assert.Equal(t, []string{StatusInProgress, StatusCompleted}, schedules.transitions[schedule.ID])
}

func TestDispatcherSucceedsWithPartialChannelFailure(t *testing.T) {
	schedule := reminderSchedule(t)
	schedule.Status = StatusPending
	schedules := newFakeDispatchScheduleStore(&schedule)
	job := queuedReminder(t, &schedule)
	queue := newFakeDispatchQueueStore(job)

	email := &recordingEmailSender{}
	d := NewDispatcher(schedules, queue, &fakeResolver{contacts: []customers.ResolvedContact{
		{Name: "email", Value: "budi@example.com"},
		{Name: "whatsapp", Value: "628123"},
	}}, &fakeInvoiceLoader{}, nil, time.Second, nil).
		WithChannels(&recordingSender{err: errors.New("gateway timeout")}, email, &recordingTelegramSender{})

	require.NoError(t, d.ProcessNext(context.Background()))

	assert.Equal(t, []string{"budi@example.com"}, email.tos)
	assert.Equal(t, []string{StatusInProgress, StatusCompleted}, queue.transitions[job.ID])
}

func TestDispatcherFailsWhenAllChannelsFail(t *testing.T) {
	schedule := reminderSchedule(t)
	schedule.Status = StatusPending
	schedules := newFakeDispatchScheduleStore(&schedule)
	job := queuedReminder(t, &schedule)
	queue := newFakeDispatchQueueStore(job)

	d := NewDispatcher(schedules, queue, &fakeResolver{contacts: []customers.ResolvedContact{
		{Name: "whatsapp", Value: "628123"},
		{Name: "email", Value: "budi@example.com"},
	}}, &fakeInvoiceLoader{}, nil, time.Second, nil).
		WithChannels(
			&recordingSender{err: errors.New("gateway timeout")},
			&recordingEmailSender{err: errors.New("bounced")},
			&recordingTelegramSender{})

	require.NoError(t, d.ProcessNext(context.Background()))

	assert.Equal(t, []string{StatusInProgress, StatusFailed}, queue.transitions[job.ID])
}

func TestDispatcherTelegramWithoutChatIDFails(t *testing.T) {
	schedule := reminderSchedule(t)
	schedule.Status = StatusPending
	schedules := newFakeDispatchScheduleStore(&schedule)
	job := queuedReminder(t, &schedule)
	queue := newFakeDispatchQueueStore(job)

	telegram := &recordingTelegramSender{}
	d := NewDispatcher(schedules, queue, &fakeResolver{contacts: []customers.ResolvedContact{
		{Name: "telegram", Value: "budi_tg"},
	}}, &fakeInvoiceLoader{}, nil, time.Second, nil).
		WithChannels(&recordingSender{}, &recordingEmailSender{}, telegram)

	require.NoError(t, d.ProcessNext(context.Background()))

	assert.Empty(t, telegram.chatIDs)
	assert.Equal(t, []string{StatusInProgress, StatusFailed}, queue.transitions[job.ID])
}

func TestDispatcherSendsTelegramByChatID(t *testing.T) {
	schedule := reminderSchedule(t)
	schedule.Status = StatusPending
	schedules := newFakeDispatchScheduleStore(&schedule)
	queue := newFakeDispatchQueueStore(queuedReminder(t, &schedule))

	telegram := &recordingTelegramSender{}
	d := NewDispatcher(schedules, queue, &fakeResolver{contacts: []customers.ResolvedContact{
		{Name: "telegram", Value: "budi_tg", AdditionalValue: strPtr("987654321")},
	}}, &fakeInvoiceLoader{}, nil, time.Second, nil).
		WithChannels(&recordingSender{}, &recordingEmailSender{}, telegram)

	require.NoError(t, d.ProcessNext(context.Background()))

	assert.Equal(t, []int64{987654321}, telegram.chatIDs)
}

func TestDispatcherFailsMalformedJobData(t *testing.T) {
	schedules := newFakeDispatchScheduleStore()
	job := JobQueue{
		ID:      uuid.New(),
		JobType: JobSendReminder,
		JobData: json.RawMessage(`{"customer_name":"Budi"}`),
		Status:  StatusPending,
	}
	queue := newFakeDispatchQueueStore(job)

	d := NewDispatcher(schedules, queue, &fakeResolver{}, &fakeInvoiceLoader{}, nil, time.Second, nil).
		WithChannels(&recordingSender{}, &recordingEmailSender{}, &recordingTelegramSender{})

	require.NoError(t, d.ProcessNext(context.Background()))

	assert.Equal(t, []string{StatusInProgress, StatusFailed}, queue.transitions[job.ID])
}

func TestDispatcherComposesInvoiceMessage(t *testing.T) {
	invoiceID := uuid.New()
	schedule := invoiceSchedule(t, invoiceID)
	schedule.Status = StatusPending
	schedules := newFakeDispatchScheduleStore(&schedule)
	queue := newFakeDispatchQueueStore(queuedReminder(t, &schedule))

	loader := &fakeInvoiceLoader{invoice: invoices.Invoice{
		ID:             invoiceID,
		TotalAmount:    111000,
		PaymentPayload: json.RawMessage(`{"invoice_url":"https://pay.example/x"}`),
	}}
	email := &recordingEmailSender{}
	d := NewDispatcher(schedules, queue, &fakeResolver{contacts: []customers.ResolvedContact{
		{Name: "email", Value: "budi@example.com"},
	}}, loader, nil, time.Second, nil).
		WithChannels(&recordingSender{}, email, &recordingTelegramSender{})

	require.NoError(t, d.ProcessNext(context.Background()))

	require.Len(t, email.bodies, 1)
	assert.Contains(t, email.bodies[0], "https://pay.example/x")
	assert.Contains(t, email.bodies[0], "Rp111000.00")
	assert.Equal(t, []string{"Invoice from Warung"}, email.subjects)
}

func TestDispatcherGateBlocksClaim(t *testing.T) {
	schedule := reminderSchedule(t)
	schedule.Status = StatusPending
	schedules := newFakeDispatchScheduleStore(&schedule)
	queue := newFakeDispatchQueueStore(queuedReminder(t, &schedule))

	gate, err := NewCronGate("0 0 * * * *")
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 10, 0, 1, 0, time.UTC)

	d := NewDispatcher(schedules, queue, &fakeResolver{contacts: []customers.ResolvedContact{
		{Name: "whatsapp", Value: "628123"},
	}}, &fakeInvoiceLoader{}, nil, time.Second, nil).
		WithChannels(&recordingSender{}, &recordingEmailSender{}, &recordingTelegramSender{}).
		WithGate(gate).
		WithClock(func() time.Time { return now })

	// First tick opens the window, second is inside the same window.
	require.NoError(t, d.ProcessNext(context.Background()))
	require.NoError(t, d.ProcessNext(context.Background()))
	assert.Equal(t, 1, queue.claimed)
}

func TestDispatcherNoWork(t *testing.T) {
	d := NewDispatcher(newFakeDispatchScheduleStore(), newFakeDispatchQueueStore(), &fakeResolver{}, &fakeInvoiceLoader{}, nil, time.Second, nil)
	assert.ErrorIs(t, d.ProcessNext(context.Background()), ErrNoWork)
}
