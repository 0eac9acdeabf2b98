package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/metrics"
)

// Local is an in-process Guard. It only serializes writers inside one
// process; multi-instance deployments use Redis.
type Local struct {
	wait    time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	sem  chan struct{}
	refs int
}

func NewLocal(wait time.Duration, m *metrics.Metrics, log *slog.Logger) *Local {
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Local{
		wait:    wait,
		log:     log.With(slog.String("component", "guard"), slog.String("backend", "local")),
		metrics: m,
		locks:   make(map[string]*localLock),
	}
}

func (l *Local) WithExclusiveWindow(ctx context.Context, professionalID uuid.UUID, window domain.Interval, fn func(ctx context.Context) error) error {
	return l.WithExclusiveWindows(ctx, professionalID, []domain.Interval{window}, fn)
}

func (l *Local) WithExclusiveWindows(ctx context.Context, professionalID uuid.UUID, windows []domain.Interval, fn func(ctx context.Context) error) error {
	names := keys(professionalID, windows)
	started := time.Now()
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	held := make([]string, 0, len(names))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}()

	for _, name := range names {
		lk := l.ref(name)
		select {
		case lk.sem <- struct{}{}:
			held = append(held, name)
		case <-deadline.C:
			l.unref(name)
			l.metrics.ObserveLock("local", "timeout", time.Since(started))
			l.log.Info("slot lock timeout", slog.String("professional_id", professionalID.String()), slog.String("key", name))
			return conflict(professionalID, windows, errLockTimeout)
		case <-ctx.Done():
			l.unref(name)
			l.metrics.ObserveLock("local", "cancelled", time.Since(started))
			return ctx.Err()
		}
	}
	l.metrics.ObserveLock("local", "acquired", time.Since(started))

	return fn(ctx)
}

func (l *Local) ref(name string) *localLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[name]
	if !ok {
		lk = &localLock{sem: make(chan struct{}, 1)}
		l.locks[name] = lk
	}
	lk.refs++
	return lk
}

func (l *Local) unref(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk := l.locks[name]
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, name)
	}
}

func (l *Local) release(name string) {
	l.mu.Lock()
	lk := l.locks[name]
	l.mu.Unlock()
	<-lk.sem
	l.unref(name)
}
