package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSchedule   = errors.New("invalid schedule")
	ErrSlotConflict      = errors.New("slot conflict")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrPolicyViolation   = errors.New("policy violation")
)

type NotFoundError struct {
	Entity string
	ID     string
}

func NotFound(entity string, id uuid.UUID) error {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidScheduleError is returned when a template, exception or break rule
// is rejected at write time.
type InvalidScheduleError struct {
	Reason string
}

func invalidSchedule(reason string) error {
	return &InvalidScheduleError{Reason: reason}
}

func (e *InvalidScheduleError) Error() string {
	return "invalid schedule: " + e.Reason
}

func (e *InvalidScheduleError) Is(target error) bool { return target == ErrInvalidSchedule }

// SlotConflictError means the requested window cannot be committed. Callers
// must refresh availability instead of retrying the same window.
type SlotConflictError struct {
	ProfessionalID uuid.UUID
	Window         Interval
	Reason         string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot conflict for professional %s at %s: %s",
		e.ProfessionalID, e.Window.Start.Format("2006-01-02T15:04Z07:00"), e.Reason)
}

func (e *SlotConflictError) Is(target error) bool { return target == ErrSlotConflict }

type IllegalTransitionError struct {
	From   Status
	Action string
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot %s appointment in status %s", e.Action, e.From)
	}
	return fmt.Sprintf("cannot %s appointment in status %s: %s", e.Action, e.From, e.Reason)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

type PolicyViolationError struct {
	Rule   string
	Reason string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy %s violated: %s", e.Rule, e.Reason)
}

func (e *PolicyViolationError) Is(target error) bool { return target == ErrPolicyViolation }
