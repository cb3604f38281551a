package triage

import (
	"regexp"
	"strings"
)

// Keyword extraction of injury details from a free-text message. This is
// deliberately heuristic: it keeps the turn pipeline to a single generation
// call, and whatever it misses the follow-up question round recovers.

// Multi-word parts first so "lower back" wins over "back".
var knownBodyParts = []string{
	"lower back", "upper back", "achilles", "hamstring", "shoulder", "ankle",
	"wrist", "elbow", "knee", "hip", "neck", "back", "calf", "thigh", "groin",
	"heel", "foot", "shin", "finger", "toe", "quad",
}

var symptomKeywords = []struct {
	match   string
	symptom string
}{
	{"sharp pain", "sharp pain"},
	{"dull ache", "dull ache"},
	{"burning", "burning pain"},
	{"swollen", "swelling"},
	{"swelling", "swelling"},
	{"bruis", "bruising"},
	{"stiff", "stiffness"},
	{"unstable", "instability"},
	{"gives way", "instability"},
	{"giving way", "instability"},
	{"numb", "numbness"},
	{"tingling", "tingling"},
	{"clicking", "clicking"},
	{"popping", "popping"},
	{"locking", "locking"},
	{"weak", "weakness"},
	{"can't move", "restricted movement"},
	{"cannot move", "restricted movement"},
	{"pain", "pain"},
}

var mechanismKeywords = []string{
	"twisted", "twisting", "rolled", "fell", "falling", "landed", "sprained",
	"lifted", "lifting", "overstretched", "collided", "tackled", "slipped",
	"hit", "banged", "jumped",
}

var durationPattern = regexp.MustCompile(
	`(?i)\b(?:for\s+|since\s+|about\s+|around\s+)?((?:\d+|a|an|one|two|three|four|five|six|seven|couple of|few|several)\s+(?:minutes?|hours?|days?|weeks?|months?|years?))\b`)

var relativeDurations = []string{
	"yesterday", "today", "this morning", "last night", "last week", "last month",
}

// ExtractDetails pulls structured injury details out of a raw message.
// Everything unrecognized is simply left empty; the missing-information
// policy decides whether to ask.
func ExtractDetails(message string) InjuryDetails {
	lower := strings.ToLower(message)
	var d InjuryDetails

	for _, part := range knownBodyParts {
		if strings.Contains(lower, part) {
			d.BodyPart = part
			break
		}
	}

	for _, kw := range symptomKeywords {
		if strings.Contains(lower, kw.match) {
			d.Symptoms = unionSymptoms(d.Symptoms, []string{kw.symptom})
		}
	}

	switch {
	case containsAny(lower, "severe", "unbearable", "excruciating", "worst pain"):
		d.Severity = "severe"
	case containsAny(lower, "moderate", "quite bad", "pretty bad"):
		d.Severity = "moderate"
	case containsAny(lower, "mild", "slight", "a little", "minor"):
		d.Severity = "mild"
	}

	if m := durationPattern.FindStringSubmatch(message); m != nil {
		d.Duration = strings.ToLower(m[1])
	} else {
		for _, rel := range relativeDurations {
			if strings.Contains(lower, rel) {
				d.Duration = rel
				break
			}
		}
	}

	for _, verb := range mechanismKeywords {
		if strings.Contains(lower, verb) {
			d.Mechanism = sentenceAround(message, verb)
			break
		}
	}

	if idx := strings.Index(lower, "while "); idx >= 0 && d.Context == "" {
		d.Context = sentenceAround(message, "while ")
	} else if idx := strings.Index(lower, "during "); idx >= 0 && d.Context == "" {
		d.Context = sentenceAround(message, "during ")
	}

	return d
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// sentenceAround returns the sentence of message containing marker, so the
// mechanism keeps its surrounding phrasing ("twisted it landing from a jump").
func sentenceAround(message, marker string) string {
	lower := strings.ToLower(message)
	idx := strings.Index(lower, strings.ToLower(marker))
	if idx < 0 {
		return ""
	}
	start := strings.LastIndexAny(lower[:idx], ".!?")
	if start < 0 {
		start = 0
	} else {
		start++
	}
	end := strings.IndexAny(lower[idx:], ".!?")
	if end < 0 {
		end = len(message)
	} else {
		end += idx
	}
	return strings.TrimSpace(message[start:end])
}
