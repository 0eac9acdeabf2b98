package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

const DefaultTTL = 5 * time.Minute

// Intervals caches resolved open intervals in one Redis hash per
// professional, one field per day. Invalidation drops the whole hash.
type Intervals struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewIntervals(rdb redis.Cmdable, ttl time.Duration) *Intervals {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Intervals{rdb: rdb, ttl: ttl}
}

func key(professionalID uuid.UUID) string {
	return fmt.Sprintf("appointly:open:%s", professionalID)
}

// GetDays returns the cached days among days. Missing days are absent from
// the result.
func (c *Intervals) GetDays(ctx context.Context, professionalID uuid.UUID, days []domain.Date) (map[domain.Date][]domain.Interval, error) {
	if len(days) == 0 {
		return map[domain.Date][]domain.Interval{}, nil
	}
	fields := make([]string, len(days))
	for i, d := range days {
		fields[i] = d.String()
	}
	vals, err := c.rdb.HMGet(ctx, key(professionalID), fields...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Date][]domain.Interval, len(days))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var ivs []domain.Interval
		if err := json.Unmarshal([]byte(s), &ivs); err != nil {
			return nil, fmt.Errorf("decode cached day %s: %w", fields[i], err)
		}
		if ivs == nil {
			ivs = []domain.Interval{}
		}
		out[days[i]] = ivs
	}
	return out, nil
}

func (c *Intervals) PutDays(ctx context.Context, professionalID uuid.UUID, days map[domain.Date][]domain.Interval) error {
	if len(days) == 0 {
		return nil
	}
	values := make(map[string]any, len(days))
	for d, ivs := range days {
		b, err := json.Marshal(ivs)
		if err != nil {
			return err
		}
		values[d.String()] = string(b)
	}
	k := key(professionalID)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, values)
		p.Expire(ctx, k, c.ttl)
		return nil
	})
	return err
}

func (c *Intervals) Invalidate(ctx context.Context, professionalID uuid.UUID) error {
	return c.rdb.Del(ctx, key(professionalID)).Err()
}
