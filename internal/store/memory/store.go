// Package memory is an in-process implementation of the store interfaces.
// Write transactions are serialized and staged until commit, so a failing
// transaction leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type Store struct {
	txMu sync.Mutex

	mu            sync.RWMutex
	professionals map[uuid.UUID]domain.Professional
	services      map[uuid.UUID]domain.Service
	templates     map[uuid.UUID]domain.WorkingHoursTemplate
	exceptions    map[uuid.UUID]domain.ScheduleException
	breaks        map[uuid.UUID]domain.BreakRule
	policies      map[uuid.UUID]domain.TenantPolicy
	appointments  map[uuid.UUID]domain.Appointment

	faults Faults
}

// Faults lets tests fail individual writes inside a transaction.
type Faults struct {
	Insert func(appt domain.Appointment) error
	Update func(appt domain.Appointment) error
	List   func(professionalID uuid.UUID) error
}

func New() *Store {
	return &Store{
		professionals: make(map[uuid.UUID]domain.Professional),
		services:      make(map[uuid.UUID]domain.Service),
		templates:     make(map[uuid.UUID]domain.WorkingHoursTemplate),
		exceptions:    make(map[uuid.UUID]domain.ScheduleException),
		breaks:        make(map[uuid.UUID]domain.BreakRule),
		policies:      make(map[uuid.UUID]domain.TenantPolicy),
		appointments:  make(map[uuid.UUID]domain.Appointment),
	}
}

func (s *Store) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

func newID(id uuid.UUID) (uuid.UUID, error) {
	if id != uuid.Nil {
		return id, nil
	}
	return uuid.NewV7()
}

func stamp(createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}

// catalog

func (s *Store) SaveProfessional(ctx context.Context, p domain.Professional) (domain.Professional, error) {
	id, err := newID(p.ID)
	if err != nil {
		return domain.Professional{}, err
	}
	p.ID = id
	stamp(&p.CreatedAt, &p.UpdatedAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.professionals[p.ID] = p
	return p, nil
}

func (s *Store) GetProfessional(ctx context.Context, id uuid.UUID) (domain.Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.professionals[id]
	if !ok {
		return domain.Professional{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) SaveService(ctx context.Context, svc domain.Service) (domain.Service, error) {
	id, err := newID(svc.ID)
	if err != nil {
		return domain.Service{}, err
	}
	svc.ID = id
	stamp(&svc.CreatedAt, &svc.UpdatedAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
	return svc, nil
}

func (s *Store) GetServices(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Service, 0, len(ids))
	for _, id := range ids {
		svc, ok := s.services[id]
		if !ok {
			return nil, store.ErrNotFound
		}
		out = append(out, svc)
	}
	return out, nil
}

func (s *Store) SetTenantPolicy(tenantID uuid.UUID, p domain.TenantPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[tenantID] = p
}

func (s *Store) GetTenantPolicy(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[tenantID]
	if !ok {
		return domain.TenantPolicy{}, store.ErrNotFound
	}
	return p, nil
}

// calendar

func (s *Store) LoadCalendar(ctx context.Context, professionalID uuid.UUID) (domain.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.professionals[professionalID]
	if !ok {
		return domain.Calendar{}, store.ErrNotFound
	}
	cal := domain.Calendar{Professional: p}
	for _, t := range s.templates {
		if t.ProfessionalID == professionalID {
			t.Days = cloneDays(t.Days)
			cal.Templates = append(cal.Templates, t)
		}
	}
	for _, e := range s.exceptions {
		if e.ProfessionalID == professionalID {
			cal.Exceptions = append(cal.Exceptions, e)
		}
	}
	for _, b := range s.breaks {
		if b.ProfessionalID == professionalID {
			b.Days = append([]int16(nil), b.Days...)
			cal.Breaks = append(cal.Breaks, b)
		}
	}
	sort.Slice(cal.Templates, func(i, j int) bool { return cal.Templates[i].ID.String() < cal.Templates[j].ID.String() })
	sort.Slice(cal.Exceptions, func(i, j int) bool { return cal.Exceptions[i].ID.String() < cal.Exceptions[j].ID.String() })
	sort.Slice(cal.Breaks, func(i, j int) bool { return cal.Breaks[i].ID.String() < cal.Breaks[j].ID.String() })
	return cal, nil
}

func (s *Store) SaveTemplate(ctx context.Context, tpl domain.WorkingHoursTemplate) (domain.WorkingHoursTemplate, error) {
	id, err := newID(tpl.ID)
	if err != nil {
		return domain.WorkingHoursTemplate{}, err
	}
	tpl.ID = id
	tpl.Days = cloneDays(tpl.Days)
	stamp(&tpl.CreatedAt, &tpl.UpdatedAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	if tpl.IsActive {
		for k, other := range s.templates {
			if other.ProfessionalID == tpl.ProfessionalID && other.ID != tpl.ID && other.IsActive {
				other.IsActive = false
				other.UpdatedAt = tpl.UpdatedAt
				s.templates[k] = other
			}
		}
	}
	s.templates[tpl.ID] = tpl
	return tpl, nil
}

func (s *Store) SaveException(ctx context.Context, ex domain.ScheduleException) (domain.ScheduleException, error) {
	id, err := newID(ex.ID)
	if err != nil {
		return domain.ScheduleException{}, err
	}
	ex.ID = id
	stamp(&ex.CreatedAt, &ex.UpdatedAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions[ex.ID] = ex
	return ex, nil
}

func (s *Store) GetException(ctx context.Context, id uuid.UUID) (domain.ScheduleException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.exceptions[id]
	if !ok {
		return domain.ScheduleException{}, store.ErrNotFound
	}
	return ex, nil
}

func (s *Store) SaveBreak(ctx context.Context, br domain.BreakRule) (domain.BreakRule, error) {
	id, err := newID(br.ID)
	if err != nil {
		return domain.BreakRule{}, err
	}
	br.ID = id
	br.Days = append([]int16(nil), br.Days...)
	stamp(&br.CreatedAt, &br.UpdatedAt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaks[br.ID] = br
	return br, nil
}

func cloneDays(days []domain.DaySchedule) []domain.DaySchedule {
	out := make([]domain.DaySchedule, len(days))
	for i, d := range days {
		d.Slots = append([]domain.TimeSlot(nil), d.Slots...)
		out[i] = d
	}
	return out
}

// appointments

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) ListActiveAppointments(ctx context.Context, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterActive(s.appointments, nil, professionalID, windowStart, windowEnd), nil
}

func (s *Store) ListRecurrenceGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterGroup(s.appointments, nil, groupID), nil
}

func (s *Store) InProfessionalTransaction(ctx context.Context, professionalID uuid.UUID, days []domain.Date, fn func(ctx context.Context, tx store.BookingTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{s: s, staged: make(map[uuid.UUID]domain.Appointment)}
	if err := fn(ctx, t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range t.staged {
		s.appointments[id] = a
	}
	return nil
}

type tx struct {
	s      *Store
	staged map[uuid.UUID]domain.Appointment
}

func (t *tx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if a, ok := t.staged[id]; ok {
		return a.Clone(), nil
	}
	return t.s.GetAppointment(ctx, id)
}

func (t *tx) ListActiveAppointments(ctx context.Context, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if fault := t.s.faults.List; fault != nil {
		if err := fault(professionalID); err != nil {
			return nil, err
		}
	}
	return filterActive(t.s.appointments, t.staged, professionalID, windowStart, windowEnd), nil
}

func (t *tx) ListRecurrenceGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Appointment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return filterGroup(t.s.appointments, t.staged, groupID), nil
}

func (t *tx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	t.s.mu.RLock()
	fault := t.s.faults.Insert
	t.s.mu.RUnlock()
	if fault != nil {
		if err := fault(appt); err != nil {
			return domain.Appointment{}, err
		}
	}

	if appt.ID != uuid.Nil {
		if existing, err := t.GetAppointment(ctx, appt.ID); err == nil {
			if !sameBooking(existing, appt) {
				return domain.Appointment{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		}
	}

	id, err := newID(appt.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	appt.ID = id
	appt.BlockedUntil = appt.Window().End
	stamp(&appt.CreatedAt, &appt.UpdatedAt)

	if appt.Status.IsActive() {
		w := appt.Window()
		active, err := t.ListActiveAppointments(ctx, appt.ProfessionalID, w.Start, w.End)
		if err != nil {
			return domain.Appointment{}, err
		}
		for _, other := range active {
			if other.ID != appt.ID {
				return domain.Appointment{}, store.ErrConflict
			}
		}
	}

	t.staged[appt.ID] = appt.Clone()
	return appt, nil
}

func (t *tx) UpdateAppointment(ctx context.Context, appt domain.Appointment) error {
	t.s.mu.RLock()
	fault := t.s.faults.Update
	t.s.mu.RUnlock()
	if fault != nil {
		if err := fault(appt); err != nil {
			return err
		}
	}

	if _, err := t.GetAppointment(ctx, appt.ID); err != nil {
		return err
	}
	appt.BlockedUntil = appt.Window().End
	appt.UpdatedAt = time.Now().UTC()
	t.staged[appt.ID] = appt.Clone()
	return nil
}

func sameBooking(a, b domain.Appointment) bool {
	if a.ProfessionalID != b.ProfessionalID || a.ClientID != b.ClientID ||
		!a.ScheduledAt.Equal(b.ScheduledAt) || !a.EndTime.Equal(b.EndTime) ||
		len(a.ServiceIDs) != len(b.ServiceIDs) {
		return false
	}
	for i := range a.ServiceIDs {
		if a.ServiceIDs[i] != b.ServiceIDs[i] {
			return false
		}
	}
	return true
}

func merged(base, staged map[uuid.UUID]domain.Appointment) map[uuid.UUID]domain.Appointment {
	if len(staged) == 0 {
		return base
	}
	out := make(map[uuid.UUID]domain.Appointment, len(base)+len(staged))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range staged {
		out[k] = v
	}
	return out
}

func filterActive(base, staged map[uuid.UUID]domain.Appointment, professionalID uuid.UUID, windowStart, windowEnd time.Time) []domain.Appointment {
	window := domain.Interval{Start: windowStart, End: windowEnd}
	var out []domain.Appointment
	for _, a := range merged(base, staged) {
		if a.ProfessionalID != professionalID || !a.Status.IsActive() {
			continue
		}
		if a.Window().Overlaps(window) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func filterGroup(base, staged map[uuid.UUID]domain.Appointment, groupID uuid.UUID) []domain.Appointment {
	var out []domain.Appointment
	for _, a := range merged(base, staged) {
		if a.RecurrenceGroupID != nil && *a.RecurrenceGroupID == groupID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}
