package clinic

import "strings"

// Priority ranks how quickly a symptom should be seen.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// SymptomMatch is the outcome of keyword triage: the recommended service plus
// a patient-facing explanation.
type SymptomMatch struct {
	Kind       string
	ServiceKey string
	Priority   Priority
	Message    string
}

type symptomRule struct {
	kind       string
	keywords   []string
	serviceKey string
	priority   Priority
	message    string
}

var symptomRules = []symptomRule{
	{
		kind:       "urgent",
		keywords:   []string{"bleeding", "accident", "urgent", "fracture", "knocked", "trauma", "swollen", "emergency"},
		serviceKey: "general_dentistry",
		priority:   PriorityUrgent,
		message:    "I understand you have an urgent situation. I recommend an emergency consultation as soon as possible.",
	},
	{
		kind:       "pain",
		keywords:   []string{"pain", "hurts", "ache", "aching", "sensitive", "sensitivity"},
		serviceKey: "general_dentistry",
		priority:   PriorityHigh,
		message:    "For tooth pain, I recommend a general consultation to evaluate the cause and decide on treatment.",
	},
	{
		kind:       "root_canal",
		keywords:   []string{"root canal", "nerve", "infection", "infected", "abscess"},
		serviceKey: "root_canal",
		priority:   PriorityHigh,
		message:    "For root canal problems, I recommend an endodontic consultation.",
	},
	{
		kind:       "cavity",
		keywords:   []string{"cavity", "cavities", "hole", "chipped", "broken", "cracked", "decay"},
		serviceKey: "fillings",
		priority:   PriorityMedium,
		message:    "For cavities or damaged teeth, I recommend a dental filling.",
	},
	{
		kind:       "extraction",
		keywords:   []string{"extraction", "remove", "removal", "wisdom"},
		serviceKey: "extraction",
		priority:   PriorityMedium,
		message:    "For a tooth extraction, I can book you with one of our dentists.",
	},
	{
		kind:       "crown",
		keywords:   []string{"crown", "cap", "restore", "restoration"},
		serviceKey: "crown",
		priority:   PriorityMedium,
		message:    "To restore a damaged tooth, I recommend a dental crown.",
	},
	{
		kind:       "cosmetic",
		keywords:   []string{"white", "whitening", "stain", "stained", "discolored", "yellow", "cosmetic"},
		serviceKey: "teeth_whitening",
		priority:   PriorityLow,
		message:    "To improve the appearance of your teeth, I recommend a whitening treatment.",
	},
	{
		kind:       "cleaning",
		keywords:   []string{"cleaning", "scaling", "tartar", "hygiene", "plaque", "checkup"},
		serviceKey: "teeth_cleaning",
		priority:   PriorityLow,
		message:    "For dental hygiene and prevention, I recommend a professional cleaning.",
	},
	{
		kind:       "orthodontic",
		keywords:   []string{"crooked", "misaligned", "braces", "alignment", "straighten", "orthodontic"},
		serviceKey: "orthodontics",
		priority:   PriorityLow,
		message:    "For alignment problems, I recommend an orthodontic consultation.",
	},
}

// DetectSymptoms scans a free-form symptom description and returns the highest
// priority matching rule, or nil when nothing matches. Each rule counts at
// most once regardless of how many of its keywords appear.
func (i *Info) DetectSymptoms(description string) *SymptomMatch {
	lowered := strings.ToLower(description)

	var best *SymptomMatch
	for _, rule := range symptomRules {
		for _, kw := range rule.keywords {
			if !strings.Contains(lowered, kw) {
				continue
			}
			if best == nil || rule.priority > best.Priority {
				best = &SymptomMatch{
					Kind:       rule.kind,
					ServiceKey: rule.serviceKey,
					Priority:   rule.priority,
					Message:    rule.message,
				}
			}
			break
		}
	}
	return best
}
