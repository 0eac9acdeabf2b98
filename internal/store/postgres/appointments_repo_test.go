package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

func TestLockKeys(t *testing.T) {
	pro := uuid.MustParse("00000000-0000-0000-0000-0000000000c1")
	mon := domain.Date{Year: 2026, Month: time.March, Day: 2}
	tue := mon.AddDays(1)

	t.Run("sorted and unique", func(t *testing.T) {
		got := lockKeys(pro, []domain.Date{tue, mon, tue})
		want := []string{
			"appointly:lock:" + pro.String() + ":2026-03-02",
			"appointly:lock:" + pro.String() + ":2026-03-03",
		}
		if len(got) != len(want) {
			t.Fatalf("keys = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("keys = %v, want %v", got, want)
			}
		}
	})

	t.Run("no days locks the professional", func(t *testing.T) {
		got := lockKeys(pro, nil)
		if len(got) != 1 || got[0] != "appointly:lock:"+pro.String() {
			t.Fatalf("keys = %v", got)
		}
	})
}

func TestMapWriteError(t *testing.T) {
	plain := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"overlap constraint", &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"}, store.ErrConflict},
		{"wrapped overlap", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"}), store.ErrConflict},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"}, store.ErrIdempotencyConflict},
		{"other constraint", &pgconn.PgError{Code: "23514", ConstraintName: "appointments_check"}, nil},
		{"not a pg error", plain, plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapWriteError(tt.err)
			if tt.want == nil {
				if got != tt.err {
					t.Fatalf("err = %v, want passthrough", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("err = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSameBooking(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	base := domain.Appointment{
		ProfessionalID: uuid.MustParse("00000000-0000-0000-0000-0000000000c1"),
		ClientID:       uuid.MustParse("00000000-0000-0000-0000-0000000000d1"),
		ServiceIDs:     []uuid.UUID{uuid.MustParse("00000000-0000-0000-0000-0000000000e1")},
		ScheduledAt:    start,
		EndTime:        start.Add(time.Hour),
	}

	same := base.Clone()
	same.ScheduledAt = start.In(time.FixedZone("BRT", -3*3600))
	if !sameBooking(base, same) {
		t.Fatalf("equal instants in different zones should match")
	}

	moved := base.Clone()
	moved.EndTime = moved.EndTime.Add(time.Minute)
	if sameBooking(base, moved) {
		t.Fatalf("different end should not match")
	}

	other := base.Clone()
	other.ServiceIDs = []uuid.UUID{uuid.New()}
	if sameBooking(base, other) {
		t.Fatalf("different services should not match")
	}
}

func TestOrderServices(t *testing.T) {
	a := domain.Service{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000e1"), Name: "a"}
	b := domain.Service{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000e2"), Name: "b"}

	got, err := orderServices([]uuid.UUID{b.ID, a.ID, b.ID}, []domain.Service{a, b})
	if err != nil {
		t.Fatalf("orderServices error: %v", err)
	}
	if len(got) != 3 || got[0].Name != "b" || got[1].Name != "a" || got[2].Name != "b" {
		t.Fatalf("order = %+v", got)
	}

	if _, err := orderServices([]uuid.UUID{a.ID, uuid.New()}, []domain.Service{a}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
