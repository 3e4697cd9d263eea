package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ActivityEvent captures audit-friendly information about a flow.
type ActivityEvent struct {
	Type       ActivityType
	Outcome    ActivityOutcome
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Reason     string
	Device     DeviceMeta
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// MultiSink fans an event out to every sink. All sinks run; their errors
// are joined.
func MultiSink(sinks ...ActivitySink) ActivitySink {
	return ActivitySinkFunc(func(ctx context.Context, ev ActivityEvent) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Record(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// StoreSink writes events as ActivityLog rows.
func StoreSink(store ActivityStore) ActivitySink {
	return ActivitySinkFunc(func(ctx context.Context, ev ActivityEvent) error {
		entry := &ActivityLog{
			ID:        uuid.New(),
			Type:      ev.Type,
			Outcome:   ev.Outcome,
			Error:     ev.Reason,
			UserAgent: ev.Device.UserAgent,
			IP:        ev.Device.IP,
			CreatedAt: ev.OccurredAt,
		}
		if ev.UserID != uuid.Nil {
			uid := ev.UserID
			entry.UserID = &uid
		}
		if ev.TenantID != uuid.Nil {
			tid := ev.TenantID
			entry.TenantID = &tid
		}
		return store.Insert(ctx, entry)
	})
}

const activityWriteTimeout = 5 * time.Second

// ActivityDispatcher hands events to a sink on a single background worker.
// Dispatch never blocks: when the queue is full the event is dropped.
type ActivityDispatcher struct {
	sink    ActivitySink
	queue   chan ActivityEvent
	logger  Logger
	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
	start   sync.Once
	dropped atomic.Int64
	onDrop  func()
}

// NewActivityDispatcher creates a dispatcher with a queue of size events.
func NewActivityDispatcher(sink ActivitySink, size int, logger Logger) *ActivityDispatcher {
	if size < 1 {
		size = 1
	}
	return &ActivityDispatcher{
		sink:   normalizeActivitySink(sink),
		queue:  make(chan ActivityEvent, size),
		logger: normalizeLogger(logger),
		done:   make(chan struct{}),
		onDrop: func() {},
	}
}

// OnDrop registers a callback invoked for every dropped event.
func (d *ActivityDispatcher) OnDrop(fn func()) *ActivityDispatcher {
	if fn != nil {
		d.onDrop = fn
	}
	return d
}

// Start launches the worker. Calling it more than once is a no-op.
func (d *ActivityDispatcher) Start() {
	d.start.Do(func() {
		go d.run()
	})
}

func (d *ActivityDispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), activityWriteTimeout)
		if err := d.sink.Record(ctx, ev); err != nil {
			d.logger.Warn("activity record failed", "type", ev.Type, "outcome", ev.Outcome, "error", err)
		}
		cancel()
	}
}

// Dispatch enqueues ev. It reports false when ev was dropped.
func (d *ActivityDispatcher) Dispatch(ev ActivityEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.drop(ev)
		return false
	}

	select {
	case d.queue <- ev:
		return true
	default:
		d.drop(ev)
		return false
	}
}

func (d *ActivityDispatcher) drop(ev ActivityEvent) {
	d.dropped.Add(1)
	d.onDrop()
	d.logger.Debug("activity event dropped", "type", ev.Type)
}

// Dropped returns the number of events dropped so far.
func (d *ActivityDispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Stop closes the queue and waits for queued events to be written, or for
// ctx to be done.
func (d *ActivityDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.Start()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
