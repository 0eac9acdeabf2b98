package schedule

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

// Source is anything that can produce open intervals for a professional.
type Source interface {
	ResolveOpenIntervals(ctx context.Context, professionalID uuid.UUID, r domain.DateRange) (OpenIntervals, error)
}

type Resolver struct {
	calendars store.CalendarReader
}

func NewResolver(calendars store.CalendarReader) *Resolver {
	return &Resolver{calendars: calendars}
}

func (r *Resolver) ResolveOpenIntervals(ctx context.Context, professionalID uuid.UUID, rng domain.DateRange) (OpenIntervals, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	cal, err := r.calendars.LoadCalendar(ctx, professionalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound("professional", professionalID)
		}
		return nil, err
	}
	return Resolve(cal, rng)
}

type Cache interface {
	GetDays(ctx context.Context, professionalID uuid.UUID, days []domain.Date) (map[domain.Date][]domain.Interval, error)
	PutDays(ctx context.Context, professionalID uuid.UUID, days map[domain.Date][]domain.Interval) error
}

// CachedResolver serves resolved days from a cache and collapses concurrent
// misses for the same professional and range into one load.
type CachedResolver struct {
	next  Source
	cache Cache
	log   *slog.Logger
	group singleflight.Group
}

func NewCachedResolver(next Source, cache Cache, log *slog.Logger) *CachedResolver {
	if log == nil {
		log = slog.Default()
	}
	return &CachedResolver{next: next, cache: cache, log: log.With(slog.String("component", "schedule_cache"))}
}

func (c *CachedResolver) ResolveOpenIntervals(ctx context.Context, professionalID uuid.UUID, rng domain.DateRange) (OpenIntervals, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	days := rng.Days()

	cached, err := c.cache.GetDays(ctx, professionalID, days)
	if err != nil {
		c.log.Warn("open interval cache read failed", slog.String("professional_id", professionalID.String()), slog.Any("err", err))
		cached = nil
	}
	if len(cached) == len(days) {
		return OpenIntervals(cached), nil
	}

	key := professionalID.String() + ":" + rng.From.String() + ":" + rng.To.String()
	v, err, _ := c.group.Do(key, func() (any, error) {
		resolved, err := c.next.ResolveOpenIntervals(ctx, professionalID, rng)
		if err != nil {
			return nil, err
		}
		if err := c.cache.PutDays(ctx, professionalID, resolved); err != nil {
			c.log.Warn("open interval cache write failed", slog.String("professional_id", professionalID.String()), slog.Any("err", err))
		}
		return resolved, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(OpenIntervals), nil
}
