// Package memory provides an in-process TaskQueue for single-binary deployments and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("queue closed")

// pollInterval bounds how long a waiting consumer sleeps before rechecking
// delayed tasks that became due.
const pollInterval = 100 * time.Millisecond

// Queue keeps tasks in memory. Pending tasks are handed out by priority,
// then by scheduled time, then by creation time.
type Queue struct {
	mu      sync.Mutex
	tasks   map[string]*domain.Task
	pending []string
	notify  chan struct{}
	closed  bool
}

// NewQueue creates an empty in-memory queue.
func NewQueue() *Queue {
	return &Queue{
		tasks:  make(map[string]*domain.Task),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue adds a task. Re-enqueueing a known task id is a no-op.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidInput
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, exists := q.tasks[task.ID]; exists {
		return nil
	}
	stored := *task
	q.tasks[task.ID] = &stored
	q.pending = append(q.pending, task.ID)
	q.signal()
	return nil
}

// DequeueWithTimeout returns the next ready task, waiting up to timeout seconds.
// A zero timeout waits until the context is cancelled.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(time.Duration(timeout) * time.Second)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if task, ok := q.next(); ok {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-deadline:
			return nil, nil
		case <-q.notify:
		case <-ticker.C:
		}
		if q.isClosed() {
			return nil, nil
		}
	}
}

func (q *Queue) next() (*domain.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	ready := make([]*domain.Task, 0, len(q.pending))
	for _, id := range q.pending {
		t := q.tasks[id]
		if t != nil && t.Status == domain.TaskStatusPending && !now.Before(t.ScheduledFor) {
			ready = append(ready, t)
		}
	}
	if len(ready) == 0 {
		return nil, false
	}
	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		if !ready[i].ScheduledFor.Equal(ready[j].ScheduledFor) {
			return ready[i].ScheduledFor.Before(ready[j].ScheduledFor)
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})

	task := ready[0]
	q.removePending(task.ID)
	task.MarkProcessing()
	out := *task
	return &out, true
}

func (q *Queue) removePending(id string) {
	for i, pid := range q.pending {
		if pid == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Ack marks a task completed.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	t.MarkCompleted()
	return nil
}

// Nack schedules a retry while attempts remain, otherwise marks the task failed.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if t.CanRetry() {
		t.Retry(reason)
		q.pending = append(q.pending, t.ID)
		q.signal()
		return nil
	}
	t.MarkFailed(reason)
	return nil
}

// GetTask returns a copy of the task, or nil if unknown.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return nil, nil
	}
	out := *t
	return &out, nil
}

// Stats counts tasks by status.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := &driven.QueueStats{}
	for _, t := range q.tasks {
		switch t.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

// Ping always succeeds.
func (q *Queue) Ping(ctx context.Context) error {
	return nil
}

// Close wakes waiting consumers and rejects further enqueues.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
	return nil
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// signal must be called with mu held.
func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
