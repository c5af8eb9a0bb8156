package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brightsmile/clinic-assistant/internal/clinic"
	"github.com/brightsmile/clinic-assistant/internal/scheduling"
	"github.com/brightsmile/clinic-assistant/internal/session"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Handlers implements every action the flow offers. Each handler mutates the
// session copy it is given and names the next node; persistence is the
// engine's job.
type Handlers struct {
	clinic    *clinic.Info
	scheduler scheduling.Scheduler
	logger    *logging.Logger
	now       func() time.Time
}

func NewHandlers(info *clinic.Info, scheduler scheduling.Scheduler, logger *logging.Logger, now func() time.Time) *Handlers {
	if now == nil {
		now = time.Now
	}
	return &Handlers{clinic: info, scheduler: scheduler, logger: logger, now: now}
}

// Register wires every action into the registry.
func (h *Handlers) Register(r *Registry) {
	navigate := func(name, description, next string) {
		r.Register(Descriptor{
			Schema: ActionSchema{Name: name, Description: description},
			Handler: func(_ context.Context, _ *session.Session, _ Args) (string, error) {
				return next, nil
			},
		})
	}

	navigate("get_clinic_info", "The caller wants general clinic information: location, hours, contact details.", NodeClinicInfo)
	navigate("get_services_info", "The caller wants information about dental services, procedures, or prices.", NodeServicesInfo)
	navigate("get_dentist_info", "The caller wants information about the doctors.", NodeDentistInfo)
	navigate("schedule_appointment", "The caller wants to schedule a new visit.", NodeScheduleAppointment)
	navigate("manage_existing_appointment", "The caller wants to cancel, reschedule, or review an existing visit.", NodeManageAppointment)
	navigate("return_to_service_selection", "Return to service selection after reviewing the services mid-booking.", NodeServiceSelection)
	navigate("modify_appointment_details", "The patient wants to change some details before confirming.", NodeServiceSelection)
	navigate("reschedule_existing_appointment", "Reschedule the visit that was found.", NodeReschedule)
	navigate("back_to_main", "The caller wants to return to the main menu or ask something else.", NodeInitial)
	navigate("end_conversation", "End the conversation politely.", NodeEnd)

	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "handle_symptoms",
			Description: "The caller described symptoms or a dental problem. Triage them and recommend a service.",
			Params: []Param{
				{Name: "symptoms_description", Description: "The caller's symptoms, in their own words.", Type: ParamString, Required: true},
			},
		},
		Handler: h.handleSymptoms,
	})
	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "provide_patient_info",
			Description: "Record the patient's full name and phone number for booking.",
			Params: []Param{
				{Name: "patient_name", Description: "The patient's full name.", Type: ParamString, Required: true},
				{Name: "phone_number", Description: "The patient's phone number.", Type: ParamString, Required: true},
			},
		},
		Handler: h.providePatientInfo,
	})
	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "select_service",
			Description: "The patient picked the dental service they need, optionally with a preferred doctor.",
			Params: []Param{
				{Name: "service_type", Description: "The service key, e.g. teeth_cleaning or root_canal.", Type: ParamString, Required: true},
				{Name: "preferred_doctor", Description: "The doctor the patient prefers, if they named one.", Type: ParamString},
			},
		},
		Handler: h.selectService,
	})
	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "select_doctor",
			Description: "The patient selected or changed their preferred doctor.",
			Params: []Param{
				{Name: "doctor_name", Description: "The preferred doctor's name.", Type: ParamString, Required: true},
			},
		},
		Handler: h.selectDoctor,
	})
	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "select_date_time",
			Description: "The patient chose a preferred date and time for the visit.",
			Params: []Param{
				{Name: "preferred_date", Description: "The date in YYYY-MM-DD format.", Type: ParamString, Required: true},
				{Name: "preferred_time", Description: "The time in HH:MM format.", Type: ParamString, Required: true},
			},
		},
		Handler: h.selectDateTime,
	})
	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "select_alternative_time",
			Description: "The patient picked one of the offered alternative times.",
			Params: []Param{
				{Name: "selected_time", Description: "The chosen time in HH:MM format.", Type: ParamString, Required: true},
			},
		},
		Handler: h.selectAlternativeTime,
	})
	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "confirm_appointment",
			Description: "The patient confirmed the visit details; book it.",
		},
		Handler: h.confirmAppointment,
	})
	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "appointment_complete",
			Description: "The patient answered whether they need anything else after a successful booking.",
			Params: []Param{
				{Name: "needs_help", Description: "True when the patient needs more help, false when they are done.", Type: ParamBool, Required: true},
			},
		},
		Handler: h.appointmentComplete,
	})
	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "find_existing_appointment",
			Description: "Look up an existing visit by patient name and optionally phone number.",
			Params: []Param{
				{Name: "patient_name", Description: "The name the visit is under.", Type: ParamString, Required: true},
				{Name: "phone_number", Description: "The phone number, for verification.", Type: ParamString},
			},
		},
		Handler: h.findExistingAppointment,
	})
	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "cancel_existing_appointment",
			Description: "Cancel the visit that was found.",
		},
		Handler: h.cancelExistingAppointment,
	})
	r.Register(Descriptor{
		Schema: ActionSchema{
			Name:        "update_reschedule",
			Description: "Move the found visit to a new date and time.",
			Params: []Param{
				{Name: "new_date", Description: "The new date in YYYY-MM-DD format.", Type: ParamString, Required: true},
				{Name: "new_time", Description: "The new time in HH:MM format.", Type: ParamString, Required: true},
			},
		},
		Handler: h.updateReschedule,
	})
}

func (h *Handlers) handleSymptoms(_ context.Context, s *session.Session, args Args) (string, error) {
	match := h.clinic.DetectSymptoms(args.String("symptoms_description"))
	if match == nil {
		return NodeScheduleAppointment, nil
	}

	s.Context[ctxSymptomService] = match.ServiceKey
	s.Context[ctxSymptomMessage] = match.Message
	s.Context[ctxSymptomPriority] = match.Priority.String()
	s.Context[ctxService] = match.ServiceKey

	// With name and phone already collected, go straight to picking a time.
	if s.Context[ctxPatientName] != "" && s.Context[ctxPhoneNumber] != "" {
		return NodeDateTimeSelection, nil
	}
	return NodeSymptomTriage, nil
}

func (h *Handlers) providePatientInfo(_ context.Context, s *session.Session, args Args) (string, error) {
	s.Context[ctxPatientName] = args.String("patient_name")
	s.Context[ctxPhoneNumber] = args.String("phone_number")

	// A service recommended during triage survives; skip service selection.
	if s.Context[ctxService] != "" {
		return NodeDateTimeSelection, nil
	}
	return NodeServiceSelection, nil
}

func (h *Handlers) selectService(_ context.Context, s *session.Session, args Args) (string, error) {
	s.Context[ctxService] = args.String("service_type")
	if doc := args.String("preferred_doctor"); doc != "" {
		s.Context[ctxPreferredDoctor] = h.canonicalDoctor(doc)
	}
	return NodeDateTimeSelection, nil
}

func (h *Handlers) selectDoctor(ctx context.Context, s *session.Session, args Args) (string, error) {
	s.Context[ctxPreferredDoctor] = h.canonicalDoctor(args.String("doctor_name"))

	// With a date and time already chosen, re-check availability under the
	// new doctor.
	if s.Context[ctxDate] == "" || s.Context[ctxTime] == "" {
		return NodeDateTimeSelection, nil
	}
	slot, err := h.requestedSlot(s)
	if err != nil {
		return "", err
	}
	free, err := h.scheduler.CheckAvailability(ctx, slot)
	if err != nil {
		return "", fmt.Errorf("check availability: %w", err)
	}
	if free {
		return NodeAppointmentConfirmation, nil
	}
	if err := h.storeAlternatives(ctx, s, slot); err != nil {
		return "", err
	}
	return NodeAlternativeTimes, nil
}

func (h *Handlers) selectDateTime(ctx context.Context, s *session.Session, args Args) (string, error) {
	date, clock := args.String("preferred_date"), args.String("preferred_time")
	start, err := combineDateTime(date, clock)
	if err != nil {
		return "", err
	}

	slot := scheduling.TimeSlot{
		ResourceID: h.resourceFor(s),
		Start:      start,
		Duration:   h.clinic.ServiceDuration(s.Context[ctxService]),
	}
	free, err := h.scheduler.CheckAvailability(ctx, slot)
	if err != nil {
		return "", fmt.Errorf("check availability: %w", err)
	}

	s.Context[ctxDate] = date
	if free {
		s.Context[ctxTime] = clock
		return NodeAppointmentConfirmation, nil
	}
	if err := h.storeAlternatives(ctx, s, slot); err != nil {
		return "", err
	}
	return NodeAlternativeTimes, nil
}

func (h *Handlers) selectAlternativeTime(_ context.Context, s *session.Session, args Args) (string, error) {
	clock := args.String("selected_time")
	if _, err := time.Parse(clockLayout, clock); err != nil {
		return "", fmt.Errorf("%w: selected_time must be HH:MM", ErrInvalidArguments)
	}
	s.Context[ctxTime] = clock
	return NodeAppointmentConfirmation, nil
}

func (h *Handlers) confirmAppointment(ctx context.Context, s *session.Session, _ Args) (string, error) {
	start, err := combineDateTime(s.Context[ctxDate], s.Context[ctxTime])
	if err != nil {
		return "", err
	}

	slot := scheduling.TimeSlot{
		ResourceID: h.resourceFor(s),
		Start:      start,
		Duration:   h.clinic.ServiceDuration(s.Context[ctxService]),
	}
	appt, err := h.scheduler.CreateAppointment(ctx, scheduling.CreateRequest{
		PatientName: s.Context[ctxPatientName],
		ContactInfo: s.Context[ctxPhoneNumber],
		Slot:        slot,
		ServiceKind: s.Context[ctxService],
	})
	if errors.Is(err, scheduling.ErrSlotConflict) {
		// The slot was taken between the availability check and the booking.
		if err := h.storeAlternatives(ctx, s, slot); err != nil {
			return "", err
		}
		return NodeAlternativeTimes, nil
	}
	if err != nil {
		return "", fmt.Errorf("create appointment: %w", err)
	}

	s.Context[ctxAppointmentID] = appt.ID.String()
	h.logger.Info("appointment booked",
		"appointment_id", appt.ID.String(),
		"resource", slot.ResourceID,
		"start", slot.Start.Format(time.RFC3339))
	return NodeAppointmentSuccess, nil
}

func (h *Handlers) appointmentComplete(_ context.Context, _ *session.Session, args Args) (string, error) {
	if args.Bool("needs_help") {
		return NodeInitial, nil
	}
	return NodeGoodbye, nil
}

func (h *Handlers) findExistingAppointment(ctx context.Context, s *session.Session, args Args) (string, error) {
	appt, err := h.scheduler.FindAppointment(ctx, args.String("patient_name"), args.String("phone_number"))
	if errors.Is(err, scheduling.ErrNotFound) {
		return NodeAppointmentNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("find appointment: %w", err)
	}

	s.Context[ctxFoundID] = appt.ID.String()
	s.Context[ctxFoundPatient] = appt.PatientName
	s.Context[ctxFoundService] = appt.ServiceKind
	s.Context[ctxFoundDate] = appt.Slot.Start.Format(dateLayout)
	s.Context[ctxFoundTime] = appt.Slot.Start.Format(clockLayout)
	s.Context[ctxFoundDoctor] = appt.Slot.ResourceID
	return NodeExistingAppointmentOpts, nil
}

func (h *Handlers) cancelExistingAppointment(ctx context.Context, s *session.Session, _ Args) (string, error) {
	id, err := uuid.Parse(s.Context[ctxFoundID])
	if err != nil {
		return NodeCancellationError, nil
	}
	if err := h.scheduler.CancelAppointment(ctx, id); err != nil {
		h.logger.Error("cancel appointment failed", "appointment_id", id.String(), "error", err)
		return NodeCancellationError, nil
	}
	return NodeCancellationSuccess, nil
}

func (h *Handlers) updateReschedule(ctx context.Context, s *session.Session, args Args) (string, error) {
	id, err := uuid.Parse(s.Context[ctxFoundID])
	if err != nil {
		return NodeAppointmentNotFound, nil
	}
	start, err := combineDateTime(args.String("new_date"), args.String("new_time"))
	if err != nil {
		return "", err
	}

	current, err := h.scheduler.GetAppointment(ctx, id)
	if errors.Is(err, scheduling.ErrNotFound) {
		return NodeAppointmentNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("load appointment: %w", err)
	}

	slot := scheduling.TimeSlot{
		ResourceID: current.Slot.ResourceID,
		Start:      start,
		Duration:   current.Slot.Duration,
	}
	err = h.scheduler.UpdateAppointment(ctx, id, slot)
	if errors.Is(err, scheduling.ErrSlotConflict) {
		if err := h.storeAlternatives(ctx, s, slot); err != nil {
			return "", err
		}
		return NodeRescheduleAlternatives, nil
	}
	if errors.Is(err, scheduling.ErrNotFound) {
		return NodeAppointmentNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("update appointment: %w", err)
	}

	s.Context[ctxFoundDate] = args.String("new_date")
	s.Context[ctxFoundTime] = args.String("new_time")
	return NodeRescheduleSuccess, nil
}

// requestedSlot rebuilds the slot the patient asked for from the session.
func (h *Handlers) requestedSlot(s *session.Session) (scheduling.TimeSlot, error) {
	start, err := combineDateTime(s.Context[ctxDate], s.Context[ctxTime])
	if err != nil {
		return scheduling.TimeSlot{}, err
	}
	return scheduling.TimeSlot{
		ResourceID: h.resourceFor(s),
		Start:      start,
		Duration:   h.clinic.ServiceDuration(s.Context[ctxService]),
	}, nil
}

// resourceFor picks the scheduling resource: the preferred doctor when one is
// set, the default dentist otherwise.
func (h *Handlers) resourceFor(s *session.Session) string {
	if doc := s.Context[ctxPreferredDoctor]; doc != "" {
		return doc
	}
	return h.clinic.DefaultDentist().Name
}

// canonicalDoctor maps a spoken doctor name onto the roster entry when it
// matches, preserving the caller's wording otherwise.
func (h *Handlers) canonicalDoctor(name string) string {
	if d, ok := h.clinic.DentistByName(name); ok {
		return d.Name
	}
	return name
}

// storeAlternatives lists the open times on the requested day and renders
// them into the session for the alternative-times nodes.
func (h *Handlers) storeAlternatives(ctx context.Context, s *session.Session, requested scheduling.TimeSlot) error {
	day := time.Date(requested.Start.Year(), requested.Start.Month(), requested.Start.Day(), 0, 0, 0, 0, requested.Start.Location())
	starts, err := h.scheduler.ListAvailableSlots(ctx, requested.ResourceID, day, requested.Duration)
	if err != nil {
		return fmt.Errorf("list available slots: %w", err)
	}
	times := make([]string, 0, len(starts))
	for _, t := range starts {
		times = append(times, t.Format(clockLayout))
	}
	s.Context[ctxAvailableSlots] = strings.Join(times, ", ")
	s.Context[ctxDate] = requested.Start.Format(dateLayout)
	return nil
}

func combineDateTime(date, clock string) (time.Time, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArguments)
	}
	tod, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time must be HH:MM", ErrInvalidArguments)
	}
	return day.Add(time.Duration(tod.Hour())*time.Hour + time.Duration(tod.Minute())*time.Minute), nil
}
