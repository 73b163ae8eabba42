package domain

import "time"

// HeartbeatStatus is the lifecycle of one recorded job execution.
type HeartbeatStatus string

const (
	HeartbeatRunning HeartbeatStatus = "running"
	HeartbeatSuccess HeartbeatStatus = "success"
	HeartbeatError   HeartbeatStatus = "error"
)

// Heartbeat captures one execution attempt of a named scheduled job.
// Append-only.
type Heartbeat struct {
	ID         int64           `json:"id"`
	Job        string          `json:"job"`
	Status     HeartbeatStatus `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	Message    string          `json:"message,omitempty"`
}

// QueueSnapshot captures point-in-time job counts for one queue name.
type QueueSnapshot struct {
	ID        int64     `json:"id"`
	Job       string    `json:"job"`
	Waiting   int       `json:"waiting"`
	Active    int       `json:"active"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	TakenAt   time.Time `json:"taken_at"`
}

// AlertSeverity grades alert events.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertEvent is the durable record of one notable condition. Delivery to
// email/SMS is best-effort; this record is authoritative.
type AlertEvent struct {
	ID        int64             `json:"id"`
	Channel   string            `json:"channel"`
	Severity  AlertSeverity     `json:"severity"`
	Subject   string            `json:"subject"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// PushSubscription is one registered push-delivery endpoint. Endpoints that
// answer 404/410 are pruned by the sender.
type PushSubscription struct {
	ID        int64     `json:"id"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"created_at"`
}

// TrendSnapshot is one computed ranking of topics over a rolling window.
type TrendSnapshot struct {
	ID          int64        `json:"id"`
	ComputedAt  time.Time    `json:"computed_at"`
	WindowHours int          `json:"window_hours"`
	Topics      []TrendTopic `json:"topics"`
}

// TrendTopic aggregates one topic label across the window.
type TrendTopic struct {
	Label    string  `json:"label"`
	Score    float64 `json:"score"`
	Articles int     `json:"articles"`
}

// TranslationHealth is the per-provider translation read model.
type TranslationHealth struct {
	Provider      string     `json:"provider"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	LastContext   string     `json:"last_context,omitempty"`
}
