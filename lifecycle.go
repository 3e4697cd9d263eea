package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Prober checks a dependency is reachable.
type Prober func(ctx context.Context) error

// Closer releases one subsystem during shutdown.
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

// Lifecycle owns the process wide shutdown signal. Health probes, OS
// signals or a failing subsystem may raise it; Shutdown then runs the
// registered closers in order within the grace period.
type Lifecycle struct {
	grace   time.Duration
	logger  Logger
	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	reason  string
	closers []Closer
}

// NewLifecycle creates a Lifecycle with the given shutdown grace.
func NewLifecycle(grace time.Duration, logger Logger) *Lifecycle {
	if grace <= 0 {
		grace = 15 * time.Second
	}
	return &Lifecycle{
		grace:  grace,
		logger: normalizeLogger(logger),
		done:   make(chan struct{}),
	}
}

// Trigger raises the shutdown signal. Only the first reason is kept.
func (l *Lifecycle) Trigger(reason string) {
	l.once.Do(func() {
		l.mu.Lock()
		l.reason = reason
		l.mu.Unlock()
		l.logger.Warn("shutdown signal raised", "reason", reason)
		close(l.done)
	})
}

// Done is closed once the shutdown signal is raised.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// Reason returns why the shutdown signal was raised.
func (l *Lifecycle) Reason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// Watch raises the signal when ctx is done, e.g. on SIGTERM.
func (l *Lifecycle) Watch(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			l.Trigger("context done")
		case <-l.done:
		}
	}()
}

// StartProbe runs probe every interval until the signal is raised. The
// first failure raises the signal.
func (l *Lifecycle) StartProbe(name string, interval time.Duration, probe Prober) {
	if probe == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				err := probe(ctx)
				cancel()
				if err != nil {
					l.logger.Error("health probe failed", "probe", name, "error", err)
					l.Trigger(fmt.Sprintf("%s probe failed: %v", name, err))
					return
				}
			}
		}
	}()
}

// OnShutdown appends a closer. Closers run in registration order.
func (l *Lifecycle) OnShutdown(name string, fn func(ctx context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closers = append(l.closers, Closer{Name: name, Close: fn})
}

// Shutdown raises the signal if needed and runs every closer in order. A
// failing closer does not stop the ones after it. Closers still running
// when the grace period ends are abandoned.
func (l *Lifecycle) Shutdown() error {
	l.Trigger("shutdown requested")

	l.mu.Lock()
	closers := make([]Closer, len(l.closers))
	copy(closers, l.closers)
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), l.grace)
	defer cancel()

	var errs []error
	for _, c := range closers {
		if ctx.Err() != nil {
			l.logger.Warn("shutdown grace exceeded, skipping", "subsystem", c.Name)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, ctx.Err()))
			continue
		}

		result := make(chan error, 1)
		go func(c Closer) {
			result <- c.Close(ctx)
		}(c)

		select {
		case err := <-result:
			if err != nil {
				l.logger.Warn("subsystem close failed", "subsystem", c.Name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
				continue
			}
			l.logger.Info("subsystem closed", "subsystem", c.Name)
		case <-ctx.Done():
			l.logger.Warn("subsystem close abandoned", "subsystem", c.Name)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, ctx.Err()))
		}
	}

	return errors.Join(errs...)
}
