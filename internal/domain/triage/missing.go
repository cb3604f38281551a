package triage

import "strings"

// Field identifies one unresolved piece of injury information.
type Field string

const (
	FieldBodyPart           Field = "body_part"
	FieldSymptoms           Field = "symptoms"
	FieldDuration           Field = "duration"
	FieldContextOrMechanism Field = "context_or_mechanism"
)

// A lone symptom from this family carries no diagnostic signal, so the
// policy keeps asking for specifics.
var genericPainTerms = map[string]bool{
	"pain":     true,
	"painful":  true,
	"ache":     true,
	"aching":   true,
	"achy":     true,
	"hurt":     true,
	"hurts":    true,
	"hurting":  true,
	"sore":     true,
	"soreness": true,
	"it hurts": true,
}

func isGenericPain(symptom string) bool {
	return genericPainTerms[strings.ToLower(strings.TrimSpace(symptom))]
}

// MissingFields reports which details are still unresolved. The rules are
// independent: body part, duration, specific symptoms, and at least one of
// context or mechanism.
func MissingFields(d InjuryDetails) []Field {
	var missing []Field
	if isSentinel(d.BodyPart) {
		missing = append(missing, FieldBodyPart)
	}
	if len(d.Symptoms) == 0 || (len(d.Symptoms) == 1 && isGenericPain(d.Symptoms[0])) {
		missing = append(missing, FieldSymptoms)
	}
	if isSentinel(d.Duration) {
		missing = append(missing, FieldDuration)
	}
	if isSentinel(d.Context) && isSentinel(d.Mechanism) {
		missing = append(missing, FieldContextOrMechanism)
	}
	return missing
}

// RetryPolicy bounds how many clarification rounds the gathering stage may
// spend before proceeding with whatever is known.
type RetryPolicy struct {
	Limit int
}

// DefaultRetryPolicy allows two clarification rounds.
func DefaultRetryPolicy() RetryPolicy { return RetryPolicy{Limit: 2} }

func (p RetryPolicy) ShouldAskAgain(interactionCount int) bool {
	return interactionCount < p.Limit
}

// Missing applies the loop-prevention ceiling: once the interaction count
// reaches the limit, no fields are reported missing regardless of actual
// gaps, forcing the router forward to diagnosis generation.
func (p RetryPolicy) Missing(d InjuryDetails, interactionCount int) []Field {
	if !p.ShouldAskAgain(interactionCount) {
		return nil
	}
	return MissingFields(d)
}
