package scheduling

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/brightsmile/clinic-assistant/internal/clinic"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

var schedulingTracer = otel.Tracer("brightsmile.internal.scheduling")

// slotGranularity is the grid step for ListAvailableSlots: candidate starts
// are generated on the hour from business-hours open.
const slotGranularity = time.Hour

// MemoryScheduler is the in-memory reference backend. State is lost on
// restart; the concurrency contract matches the durable backend.
type MemoryScheduler struct {
	calendar *Calendar
	clinic   *clinic.Info
	logger   *logging.Logger

	mu    sync.RWMutex // guards appts
	appts map[uuid.UUID]*Appointment
}

var _ Scheduler = (*MemoryScheduler)(nil)

// NewMemoryScheduler creates the in-memory backend.
func NewMemoryScheduler(info *clinic.Info, logger *logging.Logger) *MemoryScheduler {
	if info == nil {
		panic("scheduling: clinic info required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryScheduler{
		calendar: NewCalendar(),
		clinic:   info,
		logger:   logger,
		appts:    make(map[uuid.UUID]*Appointment),
	}
}

// CheckAvailability reports whether the slot is free.
func (m *MemoryScheduler) CheckAvailability(ctx context.Context, slot TimeSlot) (bool, error) {
	_, span := schedulingTracer.Start(ctx, "scheduling.check_availability")
	defer span.End()
	return m.calendar.Free(slot), nil
}

// ListAvailableSlots walks the business-hours grid for the date and keeps the
// starts where the full duration fits before close and nothing conflicts.
func (m *MemoryScheduler) ListAvailableSlots(ctx context.Context, resourceID string, date time.Time, duration time.Duration) ([]time.Time, error) {
	_, span := schedulingTracer.Start(ctx, "scheduling.list_available_slots")
	defer span.End()

	if duration <= 0 {
		duration = slotGranularity
	}
	var out []time.Time
	for _, start := range businessHourStarts(m.clinic, date, duration) {
		slot := TimeSlot{ResourceID: resourceID, Start: start, Duration: duration}
		if m.calendar.Free(slot) {
			out = append(out, start)
		}
	}
	return out, nil
}

// CreateAppointment books the slot atomically via the calendar, then records
// the appointment. The calendar lane lock closes the check-then-act race.
func (m *MemoryScheduler) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	_, span := schedulingTracer.Start(ctx, "scheduling.create_appointment")
	defer span.End()

	slot := req.Slot
	if slot.Duration <= 0 {
		slot.Duration = m.clinic.ServiceDuration(req.ServiceKind)
	}

	id := uuid.New()
	if err := m.calendar.Book(id, slot); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:          id,
		PatientName: req.PatientName,
		ContactInfo: req.ContactInfo,
		Slot:        slot,
		ServiceKind: req.ServiceKind,
		Status:      StatusScheduled,
		CreatedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.appts[id] = appt
	m.mu.Unlock()

	m.logger.Info("appointment created",
		"appointment_id", id,
		"resource_id", slot.ResourceID,
		"start", slot.Start,
		"service", req.ServiceKind,
	)
	cloned := *appt
	return &cloned, nil
}

// CancelAppointment transitions to cancelled and releases the slot.
// Idempotent: a second cancel returns nil without touching anything.
func (m *MemoryScheduler) CancelAppointment(ctx context.Context, id uuid.UUID) error {
	_, span := schedulingTracer.Start(ctx, "scheduling.cancel_appointment")
	defer span.End()

	m.mu.Lock()
	appt, ok := m.appts[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if appt.Status == StatusCancelled {
		m.mu.Unlock()
		return nil
	}
	appt.Status = StatusCancelled
	slot := appt.Slot
	m.mu.Unlock()

	m.calendar.Release(id, slot.ResourceID)
	m.logger.Info("appointment cancelled", "appointment_id", id)
	return nil
}

// UpdateAppointment moves the booking to newSlot. On conflict the original
// slot is untouched and ErrSlotConflict is returned.
func (m *MemoryScheduler) UpdateAppointment(ctx context.Context, id uuid.UUID, newSlot TimeSlot) error {
	_, span := schedulingTracer.Start(ctx, "scheduling.update_appointment")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appts[id]
	if !ok || appt.Status != StatusScheduled {
		return ErrNotFound
	}
	if newSlot.Duration <= 0 {
		newSlot.Duration = appt.Slot.Duration
	}
	if err := m.calendar.Move(id, appt.Slot, newSlot); err != nil {
		return err
	}
	appt.Slot = newSlot
	m.logger.Info("appointment rescheduled", "appointment_id", id, "start", newSlot.Start)
	return nil
}

// FindAppointment matches scheduled appointments case-insensitively on name;
// contactInfo, when given, must match too.
func (m *MemoryScheduler) FindAppointment(ctx context.Context, patientName, contactInfo string) (*Appointment, error) {
	_, span := schedulingTracer.Start(ctx, "scheduling.find_appointment")
	defer span.End()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Appointment
	for _, appt := range m.appts {
		if appt.Status != StatusScheduled {
			continue
		}
		if !strings.EqualFold(appt.PatientName, patientName) {
			continue
		}
		if contactInfo != "" && appt.ContactInfo != contactInfo {
			continue
		}
		if best == nil || appt.Slot.Start.Before(best.Slot.Start) {
			best = appt
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cloned := *best
	return &cloned, nil
}

// GetAppointment returns the appointment regardless of status.
func (m *MemoryScheduler) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	appt, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cloned := *appt
	return &cloned, nil
}

// businessHourStarts generates the candidate starts for the date: on the hour
// from open, keeping only starts where start+duration fits before close.
func businessHourStarts(info *clinic.Info, date time.Time, duration time.Duration) []time.Time {
	hours := info.Hours[date.Weekday()]
	if hours.Closed() {
		return nil
	}

	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	var starts []time.Time
	for offset := hours.Open; offset+duration <= hours.Close; offset += slotGranularity {
		starts = append(starts, midnight.Add(offset))
	}
	return starts
}
