package slots

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

var (
	proA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	proB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

func mon(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

// Monday 09:00-17:00 with a 13:00-14:00 break, a 60 minute service with a
// 15 minute buffer and one appointment booked 10:15-11:15.
func mondayInput() Input {
	return Input{
		ProfessionalID: proA,
		Open: []domain.Interval{
			{Start: mon(9, 0), End: mon(13, 0)},
			{Start: mon(14, 0), End: mon(17, 0)},
		},
		Duration: domain.ServiceDurationModel{ExecutionMinutes: 60, BufferMinutes: 15},
		Mode:     domain.DurationDisplay,
		Existing: []domain.Appointment{{
			ID:            uuid.MustParse("00000000-0000-0000-0000-0000000000f1"),
			ScheduledAt:   mon(10, 15),
			EndTime:       mon(11, 15),
			BufferMinutes: 15,
			Status:        domain.StatusConfirmed,
		}},
		Step:     15 * time.Minute,
		Now:      mon(0, 0).AddDate(0, 0, -7),
		Location: time.UTC,
	}
}

func starts(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Start.Format("15:04"))
	}
	return out
}

func TestGenerate_WorkedExample(t *testing.T) {
	got := starts(Generate(mondayInput()))
	want := []string{
		"09:00",
		"11:30", "11:45",
		"14:00", "14:15", "14:30", "14:45", "15:00", "15:15", "15:30", "15:45",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("starts = %v, want %v", got, want)
	}
}

func TestFits_WorkedExample(t *testing.T) {
	in := mondayInput()
	tests := []struct {
		start time.Time
		want  error
	}{
		{mon(9, 0), nil},
		{mon(9, 30), ErrOverlapsAppointment},
		{mon(11, 15), ErrOverlapsAppointment},
		{mon(11, 30), nil},
		{mon(11, 45), nil},
		{mon(12, 0), ErrOutsideOpenHours},
		{mon(15, 45), nil},
		{mon(16, 0), ErrOutsideOpenHours},
		{mon(14, 7), nil},
	}
	for _, tt := range tests {
		t.Run(tt.start.Format("15:04"), func(t *testing.T) {
			err := Fits(in, tt.start)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Fits(%s) = %v, want %v", tt.start.Format("15:04"), err, tt.want)
			}
		})
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	in := mondayInput()
	first := Generate(in)
	second := Generate(in)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Generate is not idempotent")
	}
	if len(in.Existing) != 1 || len(in.Open) != 2 {
		t.Fatalf("input mutated")
	}
}

func TestGenerate_IgnoresInactiveAndIgnoredAppointments(t *testing.T) {
	in := mondayInput()
	in.Existing = append(in.Existing, domain.Appointment{
		ScheduledAt: mon(14, 0), EndTime: mon(15, 0), Status: domain.StatusCancelled,
	})
	in.Ignore = in.Existing[0].ID

	got := Generate(in)
	if len(got) != 12+8 {
		t.Fatalf("len = %d, want 20 (%v)", len(got), starts(got))
	}
}

func TestGenerate_StepAlignedToLocalMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	in := Input{
		Open:     []domain.Interval{{Start: time.Date(2026, 3, 2, 9, 10, 0, 0, loc), End: time.Date(2026, 3, 2, 11, 0, 0, 0, loc)}},
		Duration: domain.ServiceDurationModel{ExecutionMinutes: 30},
		Step:     30 * time.Minute,
		Now:      time.Date(2026, 2, 1, 0, 0, 0, 0, loc),
		Location: loc,
	}
	got := Generate(in)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if want := time.Date(2026, 3, 2, 9, 30, 0, 0, loc); !got[0].Start.Equal(want) {
		t.Fatalf("first = %v, want %v", got[0].Start, want)
	}
}

func TestGenerate_AdvanceWindow(t *testing.T) {
	in := mondayInput()
	in.Existing = nil
	in.Now = mon(8, 0)
	in.Policy = domain.TenantPolicy{MinAdvanceHours: 2}

	got := Generate(in)
	if len(got) == 0 || got[0].Start.Before(mon(10, 0)) {
		t.Fatalf("first = %v, want >= 10:00", starts(got))
	}

	in.Now = mon(9, 0).AddDate(0, 0, -1)
	in.Policy = domain.TenantPolicy{MaxAdvanceDays: 1}
	got = Generate(in)
	if len(got) != 1 || !got[0].Start.Equal(mon(9, 0)) {
		t.Fatalf("starts = %v, want [09:00]", starts(got))
	}
	if err := Fits(in, mon(9, 15)); !errors.Is(err, ErrOutsideAdvance) {
		t.Fatalf("Fits err = %v, want ErrOutsideAdvance", err)
	}
}

func TestGenerate_VariableDurationModes(t *testing.T) {
	in := mondayInput()
	in.Existing = nil
	in.Open = []domain.Interval{{Start: mon(9, 0), End: mon(10, 30)}}
	in.Duration = domain.ServiceDurationModel{ExecutionMinutes: 30, ExecutionMaxMinutes: 90}

	display := Generate(in)
	if len(display) != 5 {
		t.Fatalf("display len = %d, want 5", len(display))
	}
	if !display[0].End.Equal(mon(9, 30)) {
		t.Fatalf("display end = %v, want 09:30", display[0].End)
	}

	in.Mode = domain.DurationBooking
	booking := Generate(in)
	if len(booking) != 1 || !booking[0].End.Equal(mon(10, 30)) {
		t.Fatalf("booking = %v", booking)
	}
}

func TestMerge_TieBreaksOnPreferredThenID(t *testing.T) {
	a := []Candidate{{ProfessionalID: proA, Start: mon(9, 0)}, {ProfessionalID: proA, Start: mon(10, 0)}}
	b := []Candidate{{ProfessionalID: proB, Preferred: true, Start: mon(9, 0)}, {ProfessionalID: proB, Preferred: true, Start: mon(9, 30)}}
	c := []Candidate{{ProfessionalID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Start: mon(10, 0)}}

	got := Merge(a, b, c)
	want := []struct {
		pro   uuid.UUID
		start time.Time
	}{
		{proB, mon(9, 0)},
		{proA, mon(9, 0)},
		{proB, mon(9, 30)},
		{uuid.MustParse("00000000-0000-0000-0000-000000000001"), mon(10, 0)},
		{proA, mon(10, 0)},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ProfessionalID != want[i].pro || !got[i].Start.Equal(want[i].start) {
			t.Fatalf("got[%d] = %v @ %v, want %v @ %v", i, got[i].ProfessionalID, got[i].Start, want[i].pro, want[i].start)
		}
	}
}
