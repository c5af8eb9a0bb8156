package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/brightsmile/clinic-assistant/internal/clinic"
)

// Flow node names. The session's CurrentNode always holds one of these.
const (
	NodeInitial                  = "initial"
	NodeClinicInfo               = "clinic_info"
	NodeServicesInfo             = "services_info"
	NodeDentistInfo              = "dentist_info"
	NodeScheduleAppointment      = "schedule_appointment"
	NodeSymptomTriage            = "symptom_triage"
	NodeServiceSelection         = "service_selection"
	NodeDateTimeSelection        = "date_time_selection"
	NodeAlternativeTimes         = "alternative_times"
	NodeAppointmentConfirmation  = "appointment_confirmation"
	NodeAppointmentSuccess       = "appointment_success"
	NodeManageAppointment        = "manage_appointment"
	NodeExistingAppointmentOpts  = "existing_appointment_options"
	NodeAppointmentNotFound      = "appointment_not_found"
	NodeCancellationSuccess      = "cancellation_success"
	NodeCancellationError        = "cancellation_error"
	NodeReschedule               = "reschedule_appointment"
	NodeRescheduleSuccess        = "reschedule_success"
	NodeRescheduleAlternatives   = "reschedule_alternative_times"
	NodeGoodbye                  = "goodbye"
	NodeEnd                      = "end"
)

// Session context keys. Handlers write these; node builders read them.
const (
	ctxPatientName     = "patient_name"
	ctxPhoneNumber     = "phone_number"
	ctxService         = "service"
	ctxPreferredDoctor = "preferred_doctor"
	ctxDate            = "date"
	ctxTime            = "time"
	ctxAppointmentID   = "appointment_id"
	ctxAvailableSlots  = "available_slots"
	ctxSymptomService  = "symptom_service"
	ctxSymptomMessage  = "symptom_message"
	ctxSymptomPriority = "symptom_priority"
	ctxFoundID         = "found_appointment_id"
	ctxFoundPatient    = "found_patient_name"
	ctxFoundService    = "found_service"
	ctxFoundDate       = "found_date"
	ctxFoundTime       = "found_time"
	ctxFoundDoctor     = "found_doctor"
)

// Node is a built flow node: the instructions for the model and the actions
// it may invoke from here.
type Node struct {
	Name         string
	Instructions string
	Actions      []string
}

// Terminal reports whether the conversation ends at this node.
func (n Node) Terminal() bool {
	return n.Name == NodeEnd
}

// Factory builds nodes from the clinic catalog and session context. BuildNode
// is deterministic: the same name, context, and clock always produce the same
// node, which is what lets the engine replay a turn after a stale save.
type Factory struct {
	clinic *clinic.Info
	now    func() time.Time
}

func NewFactory(info *clinic.Info, now func() time.Time) *Factory {
	if now == nil {
		now = time.Now
	}
	return &Factory{clinic: info, now: now}
}

// AllNodes lists every node name, for startup graph validation.
func AllNodes() []string {
	return []string{
		NodeInitial, NodeClinicInfo, NodeServicesInfo, NodeDentistInfo,
		NodeScheduleAppointment, NodeSymptomTriage, NodeServiceSelection,
		NodeDateTimeSelection, NodeAlternativeTimes, NodeAppointmentConfirmation,
		NodeAppointmentSuccess, NodeManageAppointment, NodeExistingAppointmentOpts,
		NodeAppointmentNotFound, NodeCancellationSuccess, NodeCancellationError,
		NodeReschedule, NodeRescheduleSuccess, NodeRescheduleAlternatives,
		NodeGoodbye, NodeEnd,
	}
}

// allowedActions returns the action set offered at a node given the session
// context. A few nodes branch on context: services_info offers booking-flow
// navigation only mid-booking, symptom_triage varies with priority.
func allowedActions(name string, ctx map[string]string) []string {
	switch name {
	case NodeInitial:
		return []string{
			"get_clinic_info", "get_services_info", "get_dentist_info",
			"schedule_appointment", "manage_existing_appointment", "handle_symptoms",
		}
	case NodeClinicInfo:
		return []string{"get_services_info", "get_dentist_info", "schedule_appointment", "back_to_main"}
	case NodeServicesInfo:
		if ctx[ctxPatientName] != "" {
			return []string{"return_to_service_selection", "select_service", "back_to_main"}
		}
		return []string{"get_clinic_info", "get_dentist_info", "schedule_appointment", "back_to_main"}
	case NodeDentistInfo:
		return []string{"get_clinic_info", "get_services_info", "schedule_appointment", "back_to_main"}
	case NodeScheduleAppointment:
		return []string{"provide_patient_info", "handle_symptoms", "get_services_info", "back_to_main"}
	case NodeSymptomTriage:
		if ctx[ctxSymptomPriority] == clinic.PriorityUrgent.String() {
			return []string{"provide_patient_info", "get_clinic_info", "back_to_main"}
		}
		return []string{"provide_patient_info", "get_services_info", "back_to_main"}
	case NodeServiceSelection:
		return []string{"select_service", "get_services_info", "handle_symptoms", "back_to_main"}
	case NodeDateTimeSelection:
		return []string{"select_date_time", "select_doctor", "back_to_main"}
	case NodeAlternativeTimes:
		return []string{"select_alternative_time", "select_date_time", "select_doctor", "back_to_main"}
	case NodeAppointmentConfirmation:
		return []string{"confirm_appointment", "modify_appointment_details", "back_to_main"}
	case NodeAppointmentSuccess:
		return []string{"schedule_appointment", "get_clinic_info", "get_services_info", "appointment_complete"}
	case NodeManageAppointment:
		return []string{"find_existing_appointment", "back_to_main"}
	case NodeExistingAppointmentOpts:
		return []string{"cancel_existing_appointment", "reschedule_existing_appointment", "back_to_main"}
	case NodeAppointmentNotFound:
		return []string{"find_existing_appointment", "schedule_appointment", "back_to_main"}
	case NodeCancellationSuccess, NodeRescheduleSuccess:
		return []string{"schedule_appointment", "get_clinic_info", "end_conversation"}
	case NodeCancellationError:
		return []string{"back_to_main", "end_conversation"}
	case NodeReschedule, NodeRescheduleAlternatives:
		return []string{"update_reschedule", "back_to_main"}
	case NodeGoodbye:
		return []string{"end_conversation"}
	case NodeEnd:
		return nil
	}
	return nil
}

// nodeActionVariants enumerates every action set a node can offer across all
// context branches, for graph validation.
func nodeActionVariants(name string) [][]string {
	switch name {
	case NodeServicesInfo:
		return [][]string{
			allowedActions(name, map[string]string{ctxPatientName: "x"}),
			allowedActions(name, nil),
		}
	case NodeSymptomTriage:
		return [][]string{
			allowedActions(name, map[string]string{ctxSymptomPriority: clinic.PriorityUrgent.String()}),
			allowedActions(name, nil),
		}
	default:
		return [][]string{allowedActions(name, nil)}
	}
}

// BuildNode builds the named node from the session context.
func (f *Factory) BuildNode(name string, ctx map[string]string) (Node, error) {
	var instructions string
	switch name {
	case NodeInitial:
		instructions = f.initialInstructions()
	case NodeClinicInfo:
		instructions = f.clinicInfoInstructions()
	case NodeServicesInfo:
		instructions = f.servicesInstructions()
	case NodeDentistInfo:
		instructions = f.dentistInstructions()
	case NodeScheduleAppointment:
		instructions = f.scheduleInstructions()
	case NodeSymptomTriage:
		instructions = f.symptomTriageInstructions(ctx)
	case NodeServiceSelection:
		instructions = f.serviceSelectionInstructions()
	case NodeDateTimeSelection:
		instructions = f.dateTimeInstructions(ctx)
	case NodeAlternativeTimes:
		instructions = f.alternativeTimesInstructions(ctx)
	case NodeAppointmentConfirmation:
		instructions = f.confirmationInstructions(ctx)
	case NodeAppointmentSuccess:
		instructions = f.successInstructions(ctx)
	case NodeManageAppointment:
		instructions = f.manageInstructions()
	case NodeExistingAppointmentOpts:
		instructions = f.existingOptionsInstructions(ctx)
	case NodeAppointmentNotFound:
		instructions = f.notFoundInstructions()
	case NodeCancellationSuccess:
		instructions = f.cancellationSuccessInstructions()
	case NodeCancellationError:
		instructions = f.cancellationErrorInstructions()
	case NodeReschedule:
		instructions = f.rescheduleInstructions()
	case NodeRescheduleSuccess:
		instructions = f.rescheduleSuccessInstructions()
	case NodeRescheduleAlternatives:
		instructions = f.rescheduleAlternativesInstructions(ctx)
	case NodeGoodbye:
		instructions = f.goodbyeInstructions()
	case NodeEnd:
		instructions = f.endInstructions()
	default:
		return Node{}, fmt.Errorf("unknown node %q", name)
	}
	return Node{Name: name, Instructions: instructions, Actions: allowedActions(name, ctx)}, nil
}

func (f *Factory) dateContext() string {
	now := f.now()
	return fmt.Sprintf("CURRENT DATE AND TIME: today is %s, %s, %s. Use this when the patient says \"tomorrow\", \"next week\", and so on.",
		now.Weekday(), now.Format("2006-01-02"), now.Format("15:04"))
}

func (f *Factory) initialInstructions() string {
	return fmt.Sprintf(`You are a helpful assistant for %s.

CRITICAL RULES, NO EXCEPTIONS:
1. Every response MUST invoke exactly one action.
2. Never claim you booked, changed, or cancelled anything yourself. Only actions can do that.
3. Never confirm an outcome that was not produced by an action.
4. If unsure which action applies, use back_to_main.

Keep responses friendly, professional, and concise.

%s

Greet the caller, ask how you can help today, listen to what they need, and invoke the matching action to route them.`, f.clinic.Name, f.dateContext())
}

func (f *Factory) clinicInfoInstructions() string {
	return fmt.Sprintf(`Share information about %s:

Location and contact:
- Address: %s
- Phone: %s
- Email: %s

Opening hours:
%s

Emergency care:
%s

Answer any specific questions about location, hours, or contact details. If the caller needs something else or wants to book a visit, use the available actions.`,
		f.clinic.Name, f.clinic.Address, f.clinic.Phone, f.clinic.Email,
		f.clinic.HoursText(), f.clinic.EmergencyLine)
}

func (f *Factory) servicesInstructions() string {
	return fmt.Sprintf(`Share information about our dental services:

%s

All procedures are performed with patient comfort as the top priority. Answer any specific questions about procedures, pricing, or what to expect. If the caller wants to book a visit for any service, use the schedule_appointment action.`,
		f.clinic.ServicesText())
}

func (f *Factory) dentistInstructions() string {
	return fmt.Sprintf(`Share information about our medical team:

%s

All our doctors are licensed professionals committed to excellent dental care. Answer any questions about specific doctors or their specialties.`,
		f.clinic.DentistsText())
}

func (f *Factory) scheduleInstructions() string {
	return `I will help you schedule a visit.

IMPORTANT: if the patient mentions ANY symptoms or dental problems (pain, cavity, bleeding, and so on), you MUST use the handle_symptoms action with the full symptom description.

Otherwise, ask for the full name and phone number to continue.`
}

func (f *Factory) symptomTriageInstructions(ctx map[string]string) string {
	svc, _ := f.clinic.Service(ctx[ctxSymptomService])
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", ctx[ctxSymptomMessage])
	if ctx[ctxSymptomPriority] == clinic.PriorityUrgent.String() {
		b.WriteString("URGENT SITUATION\n\n")
	}
	fmt.Fprintf(&b, "Recommended service: %s\nDuration: %d minutes\nPrice: %s\n\n",
		svc.Name, int(svc.Duration.Minutes()), svc.Price)
	if ctx[ctxSymptomPriority] == clinic.PriorityUrgent.String() {
		fmt.Fprintf(&b, `Ask for the FULL NAME and PHONE NUMBER. When the patient provides them, you MUST use the provide_patient_info action.

Never say the appointment is booked. Booking happens only through actions.

For an extreme emergency (severe bleeding, trauma), advise going to the emergency room immediately: %s`, f.clinic.EmergencyLine)
	} else {
		b.WriteString(`Ask whether they would like to book. If YES:
1. Ask for the FULL NAME and PHONE NUMBER.
2. When you receive them, you MUST use the provide_patient_info action.

Never say the appointment is booked or that someone will call back. Booking happens only through actions.`)
	}
	return b.String()
}

func (f *Factory) serviceSelectionInstructions() string {
	var services, dentists strings.Builder
	for _, svc := range f.clinic.Services() {
		fmt.Fprintf(&services, "- %s\n", svc.Name)
	}
	for _, d := range f.clinic.Dentists() {
		fmt.Fprintf(&dentists, "- %s (%s)\n", d.Name, d.Specialty)
	}
	return fmt.Sprintf(`Now ask what type of visit the patient needs.

Our available services:
%s
Our doctors:
%s
IMPORTANT:
- If the patient asks about services or wants procedure details, use the get_services_info action.
- If the patient picks a service, use the select_service action.
- If the patient mentions a preferred doctor, use select_service with the preferred_doctor parameter.
- Do not explain the services yourself; get_services_info does that.`,
		services.String(), dentists.String())
}

func (f *Factory) dateTimeInstructions(ctx map[string]string) string {
	var doctorContext string
	if doc := ctx[ctxPreferredDoctor]; doc != "" {
		doctorContext = fmt.Sprintf(" Availability will be checked for %s.", doc)
	}
	var dentists strings.Builder
	for _, d := range f.clinic.Dentists() {
		fmt.Fprintf(&dentists, "- %s (%s)\n", d.Name, d.Specialty)
	}
	return fmt.Sprintf(`Now I need to find an available time for the visit.%s

Our hours:
%s

Our doctors:
%s
%s

IMPORTANT:
- If the patient mentions a preferred doctor, use the select_doctor action BEFORE select_date_time.
- Ask naturally what day and time would suit them; this should sound like a normal phone conversation.

Date and time parsing rules:
1. Resolve relative dates ("tomorrow", weekday names, "next week", "in N days") against the current date.
2. Map vague times: morning 09:00, noon 12:00, afternoon 14:00, evening 17:00, first thing 08:00.
3. The date MUST be YYYY-MM-DD and the time MUST be HH:MM.
4. Once you have both, you MUST use the select_date_time action with the computed values. Do not use back_to_main when the patient has given a date and time, and do not ask needless clarifying questions.`,
		doctorContext, f.clinic.HoursText(), dentists.String(), f.dateContext())
}

func (f *Factory) alternativeTimesInstructions(ctx map[string]string) string {
	var doctorContext string
	if doc := ctx[ctxPreferredDoctor]; doc != "" {
		doctorContext = " with " + doc
	}
	var dentists strings.Builder
	for _, d := range f.clinic.Dentists() {
		fmt.Fprintf(&dentists, "- %s\n", d.Name)
	}
	return fmt.Sprintf(`I am sorry, that time is not available%s. These times are open on the preferred date:

%s

OPTIONS:
- Pick one of these times with the select_alternative_time action.
- Try another date with the select_date_time action.
- Change the preferred doctor with the select_doctor action.

Available doctors:
%s`, doctorContext, ctx[ctxAvailableSlots], dentists.String())
}

func (f *Factory) confirmationInstructions(ctx map[string]string) string {
	svc, _ := f.clinic.Service(ctx[ctxService])
	doctor := ctx[ctxPreferredDoctor]
	if doctor == "" {
		doctor = f.clinic.DefaultDentist().Name
	}
	return fmt.Sprintf(`Let me confirm the visit details.

You MUST read ALL of these details to the patient:

Name: %s
Phone: %s
Service: %s
Doctor: %s
Date: %s
Time: %s
Duration: %d minutes
Estimated price: %s

After reading ALL the details, ask naturally whether everything is correct.

If the patient confirms, use the confirm_appointment action.
If the patient wants changes, use the modify_appointment_details action.`,
		ctx[ctxPatientName], ctx[ctxPhoneNumber], svc.Name, doctor,
		ctx[ctxDate], ctx[ctxTime], int(svc.Duration.Minutes()), svc.Price)
}

func (f *Factory) successInstructions(ctx map[string]string) string {
	return fmt.Sprintf(`IMPORTANT: confirm to the patient that the booking succeeded BEFORE asking whether they need anything else.

Say the following:

Excellent! Your visit has been booked successfully.

Confirmation number: %s

Important reminders:
- Please arrive 15 minutes early for the intake forms.
- Bring a valid ID and your insurance card.
- To cancel or reschedule, please call at least 24 hours ahead.
- For questions, call us at %s.

Then ask: is there anything else I can help you with today?

REQUIRED ACTION:
- If the patient says yes or wants something more, invoke appointment_complete with needs_help=true.
- If the patient says no, "that's all", or "thank you", invoke appointment_complete with needs_help=false.`,
		ctx[ctxAppointmentID], f.clinic.Phone)
}

func (f *Factory) manageInstructions() string {
	return `I can help with your existing visit. To find it, please provide:

1. The patient name the visit is under.
2. The phone number (optional, but useful for verification).

Once I find the visit I can help you cancel it, reschedule it, or review the details.`
}

func (f *Factory) existingOptionsInstructions(ctx map[string]string) string {
	return fmt.Sprintf(`I found your visit. Here are the details:

Patient: %s
Service: %s
Date: %s
Time: %s
Doctor: %s
Confirmation: %s

What would you like to do with this visit?`,
		ctx[ctxFoundPatient], ctx[ctxFoundService], ctx[ctxFoundDate],
		ctx[ctxFoundTime], ctx[ctxFoundDoctor], ctx[ctxFoundID])
}

func (f *Factory) notFoundInstructions() string {
	return fmt.Sprintf(`I could not find a visit with that information. This could be because:

- The visit was already cancelled.
- The name or phone number does not match our records.
- There may be a spelling difference.

Would you like to:
1. Search again with different information.
2. Book a new visit.
3. Call our office directly at %s for assistance.`, f.clinic.Phone)
}

func (f *Factory) cancellationSuccessInstructions() string {
	return fmt.Sprintf(`Your visit has been cancelled successfully.

If you need to book a new visit in the future, do not hesitate to call us. We hope to see you again soon at %s!

Is there anything else I can help you with today?`, f.clinic.Name)
}

func (f *Factory) cancellationErrorInstructions() string {
	return fmt.Sprintf(`I am sorry, I could not cancel your visit. This may be due to a technical problem.

Please call our office directly at %s and our staff will be happy to help you cancel.

Is there anything else I can help with?`, f.clinic.Phone)
}

func (f *Factory) rescheduleInstructions() string {
	return fmt.Sprintf(`I will help you reschedule the visit. Please tell me:

1. The new preferred date.
2. The new preferred time.

Our hours:
%s

IMPORTANT: %s Compute the exact date in YYYY-MM-DD format when given relative expressions like "tomorrow" or "next Thursday", then use the update_reschedule action.`,
		f.clinic.HoursText(), f.dateContext())
}

func (f *Factory) rescheduleSuccessInstructions() string {
	return `Your visit has been rescheduled successfully.

Updated visit details:
- Your new visit is confirmed.
- Please arrive 15 minutes early.
- For further changes, call us at least 24 hours ahead.

Is there anything else I can help you with today?`
}

func (f *Factory) rescheduleAlternativesInstructions(ctx map[string]string) string {
	return fmt.Sprintf(`That time is not available. These times are open on the preferred date:

%s

Please pick one of these times with the update_reschedule action, or tell me if you would like to try another date.`,
		ctx[ctxAvailableSlots])
}

func (f *Factory) goodbyeInstructions() string {
	return fmt.Sprintf(`Tell the patient:

"You're welcome! Thank you for choosing %s. We look forward to seeing you. Have a wonderful day!"

Then you MUST use the end_conversation action to finish the call.`, f.clinic.Name)
}

func (f *Factory) endInstructions() string {
	return fmt.Sprintf(`Thank you for calling %s! We look forward to seeing you soon. Have a wonderful day!`, f.clinic.Name)
}
