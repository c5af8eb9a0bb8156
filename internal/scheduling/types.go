// Package scheduling owns appointment booking: the slot calendar that holds
// booked time ranges per dentist and the scheduler backends that enforce the
// no-double-booking invariant under concurrent attempts.
package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSlotConflict is returned when a requested slot overlaps an existing
	// scheduled appointment for the same resource.
	ErrSlotConflict = errors.New("scheduling: slot conflicts with an existing appointment")
	// ErrNotFound is returned when no matching appointment exists.
	ErrNotFound = errors.New("scheduling: appointment not found")
)

// Status is the appointment lifecycle state. Appointments are never deleted,
// only transitioned.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// TimeSlot is a resource-scoped half-open interval [Start, Start+Duration).
type TimeSlot struct {
	ResourceID string        `json:"resource_id"`
	Start      time.Time     `json:"start"`
	Duration   time.Duration `json:"duration"`
}

// End returns the exclusive end of the slot.
func (s TimeSlot) End() time.Time { return s.Start.Add(s.Duration) }

// Conflicts reports whether two slots overlap. Slots on different resources
// never conflict.
func (s TimeSlot) Conflicts(other TimeSlot) bool {
	if s.ResourceID != other.ResourceID {
		return false
	}
	return s.Start.Before(other.End()) && other.Start.Before(s.End())
}

// Appointment is one booked visit.
type Appointment struct {
	ID          uuid.UUID `json:"id"`
	PatientName string    `json:"patient_name"`
	ContactInfo string    `json:"contact_info"`
	Slot        TimeSlot  `json:"slot"`
	ServiceKind string    `json:"service_kind"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateRequest carries everything needed to book an appointment.
type CreateRequest struct {
	PatientName string
	ContactInfo string
	Slot        TimeSlot
	ServiceKind string
}

// Scheduler is the appointment backend contract. Implementations must make
// CreateAppointment an atomic check-then-book: of any set of concurrent
// bookings for conflicting slots exactly one succeeds and the rest receive
// ErrSlotConflict.
type Scheduler interface {
	// CheckAvailability reports whether the slot is free of scheduled conflicts.
	CheckAvailability(ctx context.Context, slot TimeSlot) (bool, error)
	// ListAvailableSlots returns candidate start times for the date, ascending,
	// at the clinic's slot granularity, excluding conflicts. The result is
	// computed fresh on every call.
	ListAvailableSlots(ctx context.Context, resourceID string, date time.Time, duration time.Duration) ([]time.Time, error)
	// CreateAppointment books the slot or fails with ErrSlotConflict.
	CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error)
	// CancelAppointment transitions to cancelled. Cancelling an already
	// cancelled appointment is a no-op success.
	CancelAppointment(ctx context.Context, id uuid.UUID) error
	// UpdateAppointment moves an appointment to a new slot atomically; on
	// conflict the original booking is left untouched.
	UpdateAppointment(ctx context.Context, id uuid.UUID, newSlot TimeSlot) error
	// FindAppointment returns the scheduled appointment matching the patient
	// name (case-insensitive) and, when non-empty, the contact info.
	FindAppointment(ctx context.Context, patientName, contactInfo string) (*Appointment, error)
	// GetAppointment returns any appointment by ID regardless of status.
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
}
