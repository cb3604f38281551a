package triage

import "strings"

// Sentinel values the generator (and careless clients) use for "no answer".
// A sentinel never overwrites a previously known value.
var sentinelValues = map[string]bool{
	"":              true,
	"unknown":       true,
	"not specified": true,
	"unspecified":   true,
	"none":          true,
	"n/a":           true,
	"na":            true,
	"null":          true,
}

func isSentinel(s string) bool {
	return sentinelValues[strings.ToLower(strings.TrimSpace(s))]
}

// MergeDetails combines newly extracted details into the existing ones.
// Scalar fields take the new value only when it is non-sentinel; symptoms are
// an order-preserving, case-sensitive set union. The operation is idempotent:
// MergeDetails(MergeDetails(a, b), b) == MergeDetails(a, b).
func MergeDetails(existing, extracted InjuryDetails) InjuryDetails {
	out := existing

	if !isSentinel(extracted.BodyPart) {
		out.BodyPart = extracted.BodyPart
	}
	if !isSentinel(extracted.Severity) {
		out.Severity = extracted.Severity
	}
	if !isSentinel(extracted.Duration) {
		out.Duration = extracted.Duration
	}
	if !isSentinel(extracted.Context) {
		out.Context = extracted.Context
	}
	if !isSentinel(extracted.Mechanism) {
		out.Mechanism = extracted.Mechanism
	}
	if !isSentinel(extracted.MedicalHistory) {
		out.MedicalHistory = extracted.MedicalHistory
	}

	out.Symptoms = unionSymptoms(existing.Symptoms, extracted.Symptoms)
	return out
}

func unionSymptoms(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing)+len(extra))
	out := make([]string, 0, len(existing)+len(extra))
	for _, lists := range [][]string{existing, extra} {
		for _, s := range lists {
			s = strings.TrimSpace(s)
			if s == "" || isSentinel(s) || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
