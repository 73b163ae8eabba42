package domain

import "time"

// JobState is the queue lifecycle of one durable job row.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job is one unit of deferred work, durable across restarts. Jobs with a
// singleton key are deduplicated within their enqueue window.
type Job struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Payload      string     `json:"payload"`
	State        JobState   `json:"state"`
	SingletonKey string     `json:"singleton_key,omitempty"`
	RunAt        time.Time  `json:"run_at"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}
