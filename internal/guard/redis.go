package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/metrics"
)

const (
	DefaultLockTTL = 10 * time.Second
	pollInterval   = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Guard shared by every instance pointed at the same Redis.
// Locks expire after ttl so a crashed holder cannot block a day forever.
type Redis struct {
	rdb     redis.Cmdable
	wait    time.Duration
	ttl     time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewRedis(rdb redis.Cmdable, wait, ttl time.Duration, m *metrics.Metrics, log *slog.Logger) *Redis {
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Redis{
		rdb:     rdb,
		wait:    wait,
		ttl:     ttl,
		log:     log.With(slog.String("component", "guard"), slog.String("backend", "redis")),
		metrics: m,
	}
}

func (r *Redis) WithExclusiveWindow(ctx context.Context, professionalID uuid.UUID, window domain.Interval, fn func(ctx context.Context) error) error {
	return r.WithExclusiveWindows(ctx, professionalID, []domain.Interval{window}, fn)
}

func (r *Redis) WithExclusiveWindows(ctx context.Context, professionalID uuid.UUID, windows []domain.Interval, fn func(ctx context.Context) error) error {
	names := keys(professionalID, windows)
	token := uuid.NewString()
	started := time.Now()
	deadline := started.Add(r.wait)

	held := make([]string, 0, len(names))
	defer func() {
		if len(held) > 0 {
			r.release(ctx, held, token)
		}
	}()

	for _, name := range names {
		if err := r.acquire(ctx, name, token, deadline); err != nil {
			if err == errLockTimeout {
				r.metrics.ObserveLock("redis", "timeout", time.Since(started))
				r.log.Info("slot lock timeout", slog.String("professional_id", professionalID.String()), slog.String("key", name))
				return conflict(professionalID, windows, err)
			}
			r.metrics.ObserveLock("redis", "error", time.Since(started))
			return err
		}
		held = append(held, name)
	}
	r.metrics.ObserveLock("redis", "acquired", time.Since(started))

	return fn(ctx)
}

func (r *Redis) acquire(ctx context.Context, name, token string, deadline time.Time) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.rdb.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Redis) release(ctx context.Context, names []string, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	for i := len(names) - 1; i >= 0; i-- {
		if err := releaseScript.Run(ctx, r.rdb, []string{names[i]}, token).Err(); err != nil && err != redis.Nil {
			r.log.Warn("release slot lock failed", slog.String("key", names[i]), slog.Any("err", err))
		}
	}
}
