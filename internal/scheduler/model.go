package scheduler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job types carried by schedules and queue rows.
const (
	JobSendInvoice  = "send_invoice"
	JobSendReminder = "send_reminder"
)

// Schedule statuses. completed and canceled are terminal.
const (
	StatusScheduled  = "scheduled"
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// JobSchedule is a persisted intent to perform a job at run_at, optionally
// recurring.
type JobSchedule struct {
	ID             uuid.UUID       `json:"id"`
	JobType        string          `json:"job_type"`
	JobData        json.RawMessage `json:"job_data"`
	RunAt          time.Time       `json:"run_at"`
	RepeatInterval *int64          `json:"repeat_interval_seconds,omitempty"`
	RepeatCount    *int32          `json:"repeat_count,omitempty"`
	Remaining      *int32          `json:"remaining,omitempty"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// JobQueue is a single dispatch attempt produced by promoting a due
// schedule. Lower priority is more urgent.
type JobQueue struct {
	ID            uuid.UUID       `json:"id"`
	JobType       string          `json:"job_type"`
	JobData       json.RawMessage `json:"job_data"`
	JobScheduleID *uuid.UUID      `json:"job_schedule_id,omitempty"`
	Priority      int32           `json:"priority"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PriorityFor maps a job type to its queue priority.
func PriorityFor(jobType string) int32 {
	switch jobType {
	case JobSendInvoice:
		return 0
	case JobSendReminder:
		return 1
	default:
		return 10
	}
}

// scheduleTransitions holds the allowed prior statuses per target status.
// canceled is reachable from any non-terminal state, and in_progress may
// return to scheduled when recurrence revives it.
var scheduleTransitions = map[string][]string{
	StatusPending:    {StatusScheduled, StatusPending, StatusInProgress},
	StatusInProgress: {StatusPending, StatusFailed, StatusInProgress},
	StatusCompleted:  {StatusInProgress},
	StatusScheduled:  {StatusInProgress, StatusFailed},
	StatusFailed:     {StatusPending, StatusInProgress},
	StatusCanceled:   {StatusScheduled, StatusPending, StatusInProgress, StatusFailed},
}

// queueTransitions is the queue-row equivalent. A queue row is single-use:
// once completed or canceled it never moves again.
var queueTransitions = map[string][]string{
	StatusInProgress: {StatusPending, StatusFailed, StatusInProgress},
	StatusCompleted:  {StatusInProgress},
	StatusFailed:     {StatusPending, StatusInProgress},
	StatusCanceled:   {StatusPending, StatusFailed, StatusInProgress},
}
