package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	queueLen        = 16
	defaultIdleTTL  = 30 * time.Second
	defaultMaxConc  = 32
)

// ErrQueueFull is returned when a session already has a full backlog of
// pending analyze jobs.
var ErrQueueFull = errors.New("session queue full")

type task struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan struct{}
}

type sessionQueue struct {
	tasks chan task
}

// Manager serializes analyze jobs per session while bounding how many run
// at once across all sessions. Jobs for one session execute strictly in
// submission order, so two turns of the same conversation can never be
// processed out of order; jobs for different sessions run in parallel up to
// the concurrency cap.
type Manager struct {
	sem     chan struct{}
	idleTTL time.Duration

	mu     sync.Mutex
	queues map[string]*sessionQueue
}

// NewManager builds a manager running at most maxConcurrent jobs at once.
// Idle session queues are reaped after idleTTL.
func NewManager(maxConcurrent int, idleTTL time.Duration) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConc
	}
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	return &Manager{
		sem:     make(chan struct{}, maxConcurrent),
		idleTTL: idleTTL,
		queues:  make(map[string]*sessionQueue),
	}
}

// Do runs fn on key's queue and waits for it to finish. It returns
// ErrQueueFull when the session's backlog is saturated, and the context
// error when ctx is cancelled while the job is still queued; a cancelled
// job is skipped, not run.
func (m *Manager) Do(ctx context.Context, key string, fn func(context.Context)) error {
	t := task{ctx: ctx, fn: fn, done: make(chan struct{})}

	m.mu.Lock()
	q, ok := m.queues[key]
	if !ok {
		q = &sessionQueue{tasks: make(chan task, queueLen)}
		m.queues[key] = q
		go m.run(key, q)
	}
	select {
	case q.tasks <- t:
		m.mu.Unlock()
	default:
		m.mu.Unlock()
		return ErrQueueFull
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueCount reports how many session queues are live.
func (m *Manager) QueueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

func (m *Manager) run(key string, q *sessionQueue) {
	idle := time.NewTimer(m.idleTTL)
	defer idle.Stop()
	for {
		select {
		case t := <-q.tasks:
			if t.ctx == nil || t.ctx.Err() == nil {
				m.sem <- struct{}{}
				t.fn(t.ctx)
				<-m.sem
			}
			close(t.done)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.idleTTL)
		case <-idle.C:
			// Retire only when no submitter can still reach this queue.
			m.mu.Lock()
			if len(q.tasks) == 0 {
				delete(m.queues, key)
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
			idle.Reset(m.idleTTL)
		}
	}
}
