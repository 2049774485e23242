package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Flush tuning. Events are sent when the pending batch reaches flushBatch
// or when flushInterval elapses, whichever happens first.
const (
	defaultFlushInterval = 5 * time.Second
	defaultFlushBatch    = 10
	defaultQueueSize     = 256
)

// Sink is the backend transport for session events. Send failures are
// logged and counted by the Tracker, never surfaced to handler call paths.
type Sink interface {
	Send(ctx context.Context, events []Event) error
}

// Session is the active logical session. At most one is active per Tracker.
type Session struct {
	UUID      string
	Metadata  map[string]any
	StartedAt time.Time
}

// Tracker correlates operation events into logical sessions and streams
// them to a backend Sink. Enable and Disable are the only mutators of the
// active session; Append is safe for concurrent use from any number of
// wrapped handlers.
type Tracker struct {
	sink   Sink
	logger *slog.Logger

	mu     sync.RWMutex
	active *Session

	queue   chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	stopped atomic.Bool
	dropped atomic.Int64

	flushInterval time.Duration
	flushBatch    int
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the logger for transport failures and drops.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithFlushInterval overrides the periodic flush interval.
func WithFlushInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.flushInterval = d
		}
	}
}

// NewTracker creates a Tracker streaming to sink and starts its flush loop.
// Callers must Shutdown the tracker to drain pending events.
func NewTracker(sink Sink, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		sink:          sink,
		logger:        slog.Default(),
		queue:         make(chan Event, defaultQueueSize),
		done:          make(chan struct{}),
		flushInterval: defaultFlushInterval,
		flushBatch:    defaultFlushBatch,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.wg.Add(1)
	go t.flushLoop()

	return t
}

// Enable activates a session, replacing any previously active one. Events
// already in flight for the old session keep its UUID. A blank sessionUUID
// generates one. Enable never blocks on I/O.
func (t *Tracker) Enable(sessionUUID string, metadata map[string]any) Session {
	if sessionUUID == "" {
		sessionUUID = uuid.NewString()
	}

	s := Session{
		UUID:      sessionUUID,
		Metadata:  metadata,
		StartedAt: time.Now(),
	}

	t.mu.Lock()
	replaced := t.active
	t.active = &s
	t.mu.Unlock()

	if replaced != nil {
		t.logger.Info("session tracking re-enabled, superseding active session",
			"previous_session", replaced.UUID,
			"session", s.UUID,
		)
	} else {
		t.logger.Info("session tracking enabled", "session", s.UUID)
	}

	return s
}

// Disable clears the active session. Already-sent events are not deleted.
func (t *Tracker) Disable() {
	t.mu.Lock()
	t.active = nil
	t.mu.Unlock()
}

// Active returns the current session, if any.
func (t *Tracker) Active() (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.active == nil {
		return Session{}, false
	}
	return *t.active, true
}

// Append records an event against the active session. Without an active
// session the event is dropped, not buffered. Append never blocks: if the
// queue is full the event is dropped and counted.
func (t *Tracker) Append(event Event) {
	t.mu.RLock()
	active := t.active
	t.mu.RUnlock()

	if active == nil || t.stopped.Load() {
		return
	}
	event.SessionUUID = active.UUID

	select {
	case t.queue <- event:
	default:
		n := t.dropped.Add(1)
		t.logger.Warn("session event queue full, dropping event",
			"event_type", string(event.EventType),
			"dropped_total", n,
		)
	}
}

// Dropped reports how many events were dropped due to backpressure or
// transport failure.
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

// Shutdown stops the flush loop and drains pending events, bounded by ctx.
// It is idempotent.
func (t *Tracker) Shutdown(ctx context.Context) error {
	if t.stopped.Swap(true) {
		return nil
	}
	close(t.done)
	t.wg.Wait()

	// Drain whatever is still queued within the caller's deadline.
	var batch []Event
	for {
		select {
		case e := <-t.queue:
			batch = append(batch, e)
		default:
			t.send(ctx, batch)
			return ctx.Err()
		}
	}
}

func (t *Tracker) flushLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	var batch []Event
	for {
		select {
		case e := <-t.queue:
			batch = append(batch, e)
			if len(batch) >= t.flushBatch {
				t.send(context.Background(), batch)
				batch = nil
			}
		case <-ticker.C:
			if len(batch) > 0 {
				t.send(context.Background(), batch)
				batch = nil
			}
		case <-t.done:
			if len(batch) > 0 {
				t.send(context.Background(), batch)
			}
			return
		}
	}
}

// send hands a batch to the sink. Failures are logged and counted; the
// events are dropped rather than requeued so a dead backend cannot grow
// memory without bound.
func (t *Tracker) send(ctx context.Context, batch []Event) {
	if len(batch) == 0 || t.sink == nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := t.sink.Send(sendCtx, batch); err != nil {
		t.dropped.Add(int64(len(batch)))
		t.logger.Warn("failed to flush session events",
			"count", len(batch),
			"error", err.Error(),
		)
	}
}
