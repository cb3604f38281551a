package triage

import "strings"

// MessageKind buckets a free-text message with no action flags and no
// conversation state to route it.
type MessageKind string

const (
	KindInjury        MessageKind = "injury"
	KindGeneralHealth MessageKind = "general_health"
	KindOther         MessageKind = "other"
)

var injuryTerms = []string{
	"injur", "sprain", "strain", "torn", "tear", "fracture", "broke",
	"dislocat", "pulled", "twisted", "rolled", "swollen", "swelling",
	"bruise", "tendon", "ligament", "physio",
}

var generalHealthTerms = []string{
	"sleep", "diet", "nutrition", "vitamin", "headache", "fever", "cold",
	"flu", "cough", "stress", "anxiety", "blood pressure", "weight",
	"exercise", "stretch", "hydrat", "medication", "supplement",
}

// ClassifyMessage is a keyword pass, not a model call; it only runs when
// nothing else in the request tells the router what the user wants.
func ClassifyMessage(message string) MessageKind {
	lower := strings.ToLower(message)

	for _, t := range injuryTerms {
		if strings.Contains(lower, t) {
			return KindInjury
		}
	}
	// A body part plus any pain vocabulary is an injury description even
	// without injury-specific terms ("my knee hurts").
	for _, part := range knownBodyParts {
		if strings.Contains(lower, part) {
			if containsAny(lower, "pain", "hurt", "ache", "sore", "stiff", "weak", "numb") {
				return KindInjury
			}
		}
	}
	for _, t := range generalHealthTerms {
		if strings.Contains(lower, t) {
			return KindGeneralHealth
		}
	}
	return KindOther
}
