package guard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

const DefaultWaitTimeout = 3 * time.Second

// Guard serializes writes to a professional's timeline. fn runs only while
// every lock covering the windows is held; the locks are released on every
// exit path, including panics. If the locks cannot be taken within the wait
// timeout the call fails with *domain.SlotConflictError and fn never runs.
type Guard interface {
	WithExclusiveWindow(ctx context.Context, professionalID uuid.UUID, window domain.Interval, fn func(ctx context.Context) error) error
	WithExclusiveWindows(ctx context.Context, professionalID uuid.UUID, windows []domain.Interval, fn func(ctx context.Context) error) error
}

// Days returns the UTC calendar days touched by the windows, ascending and
// without duplicates. Two overlapping windows always share at least one
// day, so locking per day is enough to serialize them.
func Days(windows ...domain.Interval) []domain.Date {
	seen := make(map[domain.Date]struct{})
	var out []domain.Date
	for _, w := range windows {
		if w.Empty() {
			continue
		}
		last := domain.DateOf(w.End.Add(-time.Nanosecond).UTC())
		for d := domain.DateOf(w.Start.UTC()); !d.After(last); d = d.AddDays(1) {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Key is the lock name of one professional day.
func Key(professionalID uuid.UUID, day domain.Date) string {
	return fmt.Sprintf("appointly:lock:%s:%s", professionalID, day)
}

func keys(professionalID uuid.UUID, windows []domain.Interval) []string {
	days := Days(windows...)
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, Key(professionalID, d))
	}
	return out
}

var errLockTimeout = errors.New("timed out waiting for the professional's booking lock")

func conflict(professionalID uuid.UUID, windows []domain.Interval, err error) error {
	var w domain.Interval
	if len(windows) > 0 {
		w = windows[0]
	}
	return &domain.SlotConflictError{ProfessionalID: professionalID, Window: w, Reason: err.Error()}
}
