package domain

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeIngestDocument ingests one object from the document store
	TaskTypeIngestDocument TaskType = "ingest_document"
	// TaskTypeSlackEvent answers one verified Slack question
	TaskTypeSlackEvent TaskType = "slack_event"
	// TaskTypeScanSources lists the object store and enqueues changed documents
	TaskTypeScanSources TaskType = "scan_sources"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a background job to be processed by workers
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// Type identifies what kind of task this is
	Type TaskType `json:"type"`

	// Payload contains task-specific data
	// For ingest_document: {"source": "policies/retention.pdf"}
	// For slack_event: {"event": "<json SlackEvent>"}
	Payload map[string]string `json:"payload"`

	// Status is the current state of the task
	Status TaskStatus `json:"status"`

	// Priority determines processing order (higher = more urgent)
	Priority int `json:"priority"`

	// Attempts is how many times this task has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum retry count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last error message if failed
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the task should be processed (for delayed tasks)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, payload map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewIngestTask creates a task to ingest the object at source
func NewIngestTask(source string) *Task {
	return NewTask(TaskTypeIngestDocument, map[string]string{
		"source": source,
	})
}

// NewScanTask creates a task that rescans the document store
func NewScanTask() *Task {
	return NewTask(TaskTypeScanSources, nil)
}

// NewSlackEventTask creates a task to answer a Slack event.
// Slack tasks are attempted once: a retried answer could be posted twice.
func NewSlackEventTask(event *SlackEvent) (*Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal slack event: %w", err)
	}
	task := NewTask(TaskTypeSlackEvent, map[string]string{
		"event":       string(data),
		"delivery_id": event.DeliveryID,
	})
	task.ID = "slack-" + event.DeliveryID
	task.MaxAttempts = 1
	task.Priority = 10
	return task, nil
}

// Source extracts the source from the payload (for ingest_document tasks)
func (t *Task) Source() string {
	if t.Payload == nil {
		return ""
	}
	return t.Payload["source"]
}

// SlackEvent decodes the event carried by a slack_event task.
func (t *Task) SlackEvent() (*SlackEvent, error) {
	if t.Payload == nil || t.Payload["event"] == "" {
		return nil, fmt.Errorf("task %s: %w: missing event payload", t.ID, ErrInvalidInput)
	}
	var event SlackEvent
	if err := json.Unmarshal([]byte(t.Payload["event"]), &event); err != nil {
		return nil, fmt.Errorf("task %s: decode event: %w", t.ID, err)
	}
	return &event, nil
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsReady returns true if the task is ready to be processed
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && !time.Now().Before(t.ScheduledFor)
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.UpdatedAt = now
	t.Error = err
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err

	// Exponential backoff: 1s, 2s, 4s, 8s, etc.
	backoff := time.Duration(1<<t.Attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute // Cap at 5 minutes
	}
	t.ScheduledFor = now.Add(backoff)
}

// ScheduledTask represents a recurring task configuration
type ScheduledTask struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Type     TaskType      `json:"type"`
	Interval time.Duration `json:"interval"`
	Enabled  bool          `json:"enabled"`

	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   time.Time  `json:"next_run"`
	LastError string     `json:"last_error,omitempty"`
}

// NewScheduledTask creates a new scheduled task
func NewScheduledTask(id, name string, taskType TaskType, interval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:       id,
		Name:     name,
		Type:     taskType,
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now().Add(interval),
	}
}

// IsDue returns true if the scheduled task should be triggered
func (s *ScheduledTask) IsDue(now time.Time) bool {
	return s.Enabled && !now.Before(s.NextRun)
}

// UpdateNextRun records a run at now and calculates the next one
func (s *ScheduledTask) UpdateNextRun(now time.Time, lastErr string) {
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
	s.LastError = lastErr
}
