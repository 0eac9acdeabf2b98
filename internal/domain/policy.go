package domain

import (
	"fmt"
	"time"
)

const DefaultSlotStepMinutes = 15

// TenantPolicy is the read-only booking configuration of one tenant.
type TenantPolicy struct {
	MinAdvanceHours          int `json:"min_advance_hours"`
	MaxAdvanceDays           int `json:"max_advance_days"` // 0 = unlimited
	CancellationMinimumHours int `json:"cancellation_minimum_hours"`
	SlotStepMinutes          int `json:"slot_step_minutes"`
}

func (p TenantPolicy) Step() time.Duration {
	if p.SlotStepMinutes <= 0 {
		return DefaultSlotStepMinutes * time.Minute
	}
	return time.Duration(p.SlotStepMinutes) * time.Minute
}

func (p TenantPolicy) EarliestStart(now time.Time) time.Time {
	return now.Add(time.Duration(p.MinAdvanceHours) * time.Hour)
}

// LatestStart returns the last bookable start, or false when unlimited.
func (p TenantPolicy) LatestStart(now time.Time) (time.Time, bool) {
	if p.MaxAdvanceDays <= 0 {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, p.MaxAdvanceDays), true
}

func (p TenantPolicy) CheckAdvance(start, now time.Time) error {
	if earliest := p.EarliestStart(now); start.Before(earliest) {
		return &PolicyViolationError{
			Rule:   "min_advance_hours",
			Reason: fmt.Sprintf("bookings must start at least %dh from now", p.MinAdvanceHours),
		}
	}
	if latest, ok := p.LatestStart(now); ok && start.After(latest) {
		return &PolicyViolationError{
			Rule:   "max_advance_days",
			Reason: fmt.Sprintf("bookings cannot start more than %d days ahead", p.MaxAdvanceDays),
		}
	}
	return nil
}

// IsLateCancellation reports whether cancelling at now falls inside the
// minimum-notice window. A zero threshold disables the flag.
func (p TenantPolicy) IsLateCancellation(scheduledAt, now time.Time) bool {
	if p.CancellationMinimumHours <= 0 {
		return false
	}
	return scheduledAt.Sub(now) < time.Duration(p.CancellationMinimumHours)*time.Hour
}
