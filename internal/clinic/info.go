// Package clinic holds the static clinic catalog: contact details, business
// hours, the service menu with durations and prices, and the dentist roster.
// The dialogue layer renders this into node instructions; the scheduler uses
// it for durations and business-hours math.
package clinic

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Service describes one bookable service.
type Service struct {
	Key         string
	Name        string
	Description string
	Duration    time.Duration
	Price       string
}

// Dentist describes one member of the clinical staff. The dentist name doubles
// as the scheduling resource ID.
type Dentist struct {
	Name       string
	Specialty  string
	Experience string
}

// DayHours is the open/close window for one weekday. Closed days have Open ==
// Close == zero.
type DayHours struct {
	Open  time.Duration // offset from midnight, e.g. 8h for 08:00
	Close time.Duration
}

// Closed reports whether the clinic is closed that day.
func (h DayHours) Closed() bool { return h.Open == h.Close }

// Info is the full clinic catalog.
type Info struct {
	Name          string
	Address       string
	Phone         string
	Email         string
	EmergencyLine string
	Hours         map[time.Weekday]DayHours
	services      map[string]Service
	dentists      []Dentist
}

// Default returns the Bright Smile Dental Clinic catalog.
func Default() *Info {
	return &Info{
		Name:          "Bright Smile Dental Clinic",
		Address:       "123 Dental Street, Suite 1, Springfield 010123",
		Phone:         "555-DENTAL (555-336-8251)",
		Email:         "info@brightsmile.example",
		EmergencyLine: "For dental emergencies outside business hours, call 555-URGENT (555-874-3680).",
		Hours: map[time.Weekday]DayHours{
			time.Monday:    {Open: 8 * time.Hour, Close: 18 * time.Hour},
			time.Tuesday:   {Open: 8 * time.Hour, Close: 18 * time.Hour},
			time.Wednesday: {Open: 8 * time.Hour, Close: 18 * time.Hour},
			time.Thursday:  {Open: 8 * time.Hour, Close: 18 * time.Hour},
			time.Friday:    {Open: 8 * time.Hour, Close: 16 * time.Hour},
			time.Saturday:  {Open: 9 * time.Hour, Close: 14 * time.Hour},
			time.Sunday:    {},
		},
		services: map[string]Service{
			"general_dentistry": {
				Key:         "general_dentistry",
				Name:        "General Dentistry",
				Description: "Routine cleanings, checkups and preventive care",
				Duration:    60 * time.Minute,
				Price:       "$90",
			},
			"teeth_cleaning": {
				Key:         "teeth_cleaning",
				Name:        "Teeth Cleaning",
				Description: "Professional dental cleaning and polishing",
				Duration:    45 * time.Minute,
				Price:       "$60",
			},
			"fillings": {
				Key:         "fillings",
				Name:        "Dental Fillings",
				Description: "Cavity treatment with composite or amalgam fillings",
				Duration:    90 * time.Minute,
				Price:       "$120-210",
			},
			"root_canal": {
				Key:         "root_canal",
				Name:        "Root Canal Treatment",
				Description: "Treatment of infected or severely decayed teeth",
				Duration:    120 * time.Minute,
				Price:       "$480-720",
			},
			"teeth_whitening": {
				Key:         "teeth_whitening",
				Name:        "Teeth Whitening",
				Description: "Professional teeth whitening treatment",
				Duration:    90 * time.Minute,
				Price:       "$240",
			},
			"crown": {
				Key:         "crown",
				Name:        "Dental Crown",
				Description: "Custom crowns to restore damaged teeth",
				Duration:    120 * time.Minute,
				Price:       "$600-900",
			},
			"extraction": {
				Key:         "extraction",
				Name:        "Tooth Extraction",
				Description: "Safe removal of damaged or problematic teeth",
				Duration:    60 * time.Minute,
				Price:       "$90-240",
			},
			"orthodontics": {
				Key:         "orthodontics",
				Name:        "Orthodontic Consultation",
				Description: "Evaluation for braces or clear aligners",
				Duration:    60 * time.Minute,
				Price:       "$60",
			},
		},
		dentists: []Dentist{
			{Name: "Dr. Ana Popescu", Specialty: "General Dentistry", Experience: "15 years"},
			{Name: "Dr. Mihai Ionescu", Specialty: "Endodontics (Root Canal Specialist)", Experience: "12 years"},
			{Name: "Dr. Maria Georgescu", Specialty: "Orthodontics", Experience: "10 years"},
		},
	}
}

// Service looks up a service by key.
func (i *Info) Service(key string) (Service, bool) {
	svc, ok := i.services[key]
	return svc, ok
}

// ServiceDuration returns the duration of the given service, falling back to
// one hour for unknown keys so a bad service kind never produces a zero-length
// slot.
func (i *Info) ServiceDuration(key string) time.Duration {
	if svc, ok := i.services[key]; ok {
		return svc.Duration
	}
	return time.Hour
}

// Services returns the service menu sorted by key for deterministic rendering.
func (i *Info) Services() []Service {
	keys := make([]string, 0, len(i.services))
	for k := range i.services {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Service, 0, len(keys))
	for _, k := range keys {
		out = append(out, i.services[k])
	}
	return out
}

// Dentists returns the dentist roster.
func (i *Info) Dentists() []Dentist {
	return i.dentists
}

// DentistByName finds a dentist by exact name, case-insensitively.
func (i *Info) DentistByName(name string) (Dentist, bool) {
	for _, d := range i.dentists {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Dentist{}, false
}

// DefaultDentist is assigned when the patient expresses no preference.
func (i *Info) DefaultDentist() Dentist {
	return i.dentists[0]
}

// ServicesText renders the service menu for node instructions.
func (i *Info) ServicesText() string {
	var b strings.Builder
	for _, svc := range i.Services() {
		fmt.Fprintf(&b, "- %s: %s (duration: %d minutes, price: %s)\n",
			svc.Name, svc.Description, int(svc.Duration.Minutes()), svc.Price)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DentistsText renders the dentist roster for node instructions.
func (i *Info) DentistsText() string {
	var b strings.Builder
	for _, d := range i.dentists {
		fmt.Fprintf(&b, "- %s: %s (%s of experience)\n", d.Name, d.Specialty, d.Experience)
	}
	return strings.TrimRight(b.String(), "\n")
}

// HoursText renders the weekly schedule for node instructions.
func (i *Info) HoursText() string {
	days := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	var b strings.Builder
	for _, day := range days {
		h := i.Hours[day]
		if h.Closed() {
			fmt.Fprintf(&b, "- %s: closed\n", day)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s - %s\n", day, clockText(h.Open), clockText(h.Close))
	}
	return strings.TrimRight(b.String(), "\n")
}

func clockText(offset time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(offset.Hours()), int(offset.Minutes())%60)
}
