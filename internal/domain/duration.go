package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DurationMode selects which execution length of a variable service is used.
// Availability display uses the minimum; booking validation uses the maximum.
type DurationMode int

const (
	DurationDisplay DurationMode = iota
	DurationBooking
)

type ServiceDurationModel struct {
	PreparationMinutes  int `json:"preparation_minutes"`
	ExecutionMinutes    int `json:"execution_minutes"`
	ExecutionMaxMinutes int `json:"execution_max_minutes,omitempty"` // 0 = fixed duration
	FinalizationMinutes int `json:"finalization_minutes"`
	BufferMinutes       int `json:"buffer_minutes"`
}

func (m ServiceDurationModel) IsVariable() bool {
	return m.ExecutionMaxMinutes > m.ExecutionMinutes
}

func (m ServiceDurationModel) executionMinutes(mode DurationMode) int {
	if mode == DurationBooking && m.IsVariable() {
		return m.ExecutionMaxMinutes
	}
	return m.ExecutionMinutes
}

// Bookable is preparation + execution + finalization. The buffer is not part
// of the slot; it only separates consecutive bookings.
func (m ServiceDurationModel) Bookable(mode DurationMode) time.Duration {
	total := m.PreparationMinutes + m.executionMinutes(mode) + m.FinalizationMinutes
	return time.Duration(total) * time.Minute
}

func (m ServiceDurationModel) Buffer() time.Duration {
	return time.Duration(m.BufferMinutes) * time.Minute
}

func (m ServiceDurationModel) Validate() error {
	if m.PreparationMinutes < 0 || m.FinalizationMinutes < 0 || m.BufferMinutes < 0 {
		return invalidSchedule("duration components must not be negative")
	}
	if m.ExecutionMinutes <= 0 {
		return invalidSchedule("execution_minutes must be positive")
	}
	if m.ExecutionMaxMinutes != 0 && m.ExecutionMaxMinutes < m.ExecutionMinutes {
		return invalidSchedule("execution_max_minutes must not be below execution_minutes")
	}
	return nil
}

// CombineDurations models several services performed back to back: durations
// add up and the largest buffer applies after the last one.
func CombineDurations(models ...ServiceDurationModel) ServiceDurationModel {
	var out ServiceDurationModel
	variable := false
	for _, m := range models {
		out.PreparationMinutes += m.PreparationMinutes
		out.ExecutionMinutes += m.ExecutionMinutes
		out.ExecutionMaxMinutes += m.executionMinutes(DurationBooking)
		out.FinalizationMinutes += m.FinalizationMinutes
		if m.BufferMinutes > out.BufferMinutes {
			out.BufferMinutes = m.BufferMinutes
		}
		variable = variable || m.IsVariable()
	}
	if !variable {
		out.ExecutionMaxMinutes = 0
	}
	return out
}

type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID                  uuid.UUID `bun:"id,pk,type:uuid"`
	TenantID            uuid.UUID `bun:"tenant_id,notnull,type:uuid"`
	Name                string    `bun:"name,notnull"`
	PreparationMinutes  int       `bun:"preparation_minutes,notnull"`
	ExecutionMinutes    int       `bun:"execution_minutes,notnull"`
	ExecutionMaxMinutes int       `bun:"execution_max_minutes,notnull"`
	FinalizationMinutes int       `bun:"finalization_minutes,notnull"`
	BufferMinutes       int       `bun:"buffer_minutes,notnull"`
	CreatedAt           time.Time `bun:"created_at,notnull"`
	UpdatedAt           time.Time `bun:"updated_at,notnull"`
}

func (s *Service) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (s Service) DurationModel() ServiceDurationModel {
	return ServiceDurationModel{
		PreparationMinutes:  s.PreparationMinutes,
		ExecutionMinutes:    s.ExecutionMinutes,
		ExecutionMaxMinutes: s.ExecutionMaxMinutes,
		FinalizationMinutes: s.FinalizationMinutes,
		BufferMinutes:       s.BufferMinutes,
	}
}
