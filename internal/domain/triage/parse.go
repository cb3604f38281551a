package triage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// The generator returns prose that may or may not embed one well-formed JSON
// object. Every expected payload has a validating parse-or-fallback function
// here; nothing downstream ever sees unvalidated fields, and a malformed
// completion degrades to fixed content instead of failing the turn.

// ExtractJSONBlock finds the first well-formed JSON object embedded in text.
// A fenced ```json block is preferred; otherwise the first balanced object
// is taken. The second return is false when no valid object exists.
func ExtractJSONBlock(text string) (json.RawMessage, bool) {
	if block, ok := fencedJSON(text); ok {
		return block, true
	}
	return balancedJSON(text)
}

func fencedJSON(text string) (json.RawMessage, bool) {
	for _, fence := range []string{"```json", "```JSON", "```"} {
		start := strings.Index(text, fence)
		if start < 0 {
			continue
		}
		rest := text[start+len(fence):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		candidate := strings.TrimSpace(rest[:end])
		if json.Valid([]byte(candidate)) && strings.HasPrefix(candidate, "{") {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}

func balancedJSON(text string) (json.RawMessage, bool) {
	start := strings.Index(text, "{")
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			ch := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return json.RawMessage(candidate), true
					}
					i = len(text)
				}
			}
		}
		next := strings.Index(text[start+1:], "{")
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return nil, false
}

var confidenceRank = map[string]int{
	ConfidenceHigh:   0,
	ConfidenceMedium: 1,
	ConfidenceLow:    2,
}

func normalizeConfidence(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := confidenceRank[s]; ok {
		return s
	}
	return ConfidenceLow
}

// SortDiagnoses orders candidates for display: high confidence first, stable
// within a tier.
func SortDiagnoses(ds []Diagnosis) {
	sort.SliceStable(ds, func(i, j int) bool {
		return confidenceRank[ds[i].Confidence] < confidenceRank[ds[j].Confidence]
	})
}

// FallbackDiagnosisList is the fixed substitute when the diagnosis-list
// payload cannot be extracted or validated.
func FallbackDiagnosisList() DiagnosisList {
	return DiagnosisList{
		Diagnoses:       nil,
		ImmediateAdvice: "Rest the area, avoid movements that reproduce the pain, and apply ice for 15-20 minutes at a time during the first 48 hours.",
		FollowUpQuestion: "Could you describe the injury again in a little more detail - where it hurts, " +
			"what it feels like, and what you were doing when it started?",
	}
}

// ParseDiagnosisList extracts and validates the diagnosis list payload.
// The second return is false when the fallback was substituted.
func ParseDiagnosisList(text string) (DiagnosisList, bool) {
	raw, ok := ExtractJSONBlock(text)
	if !ok {
		return FallbackDiagnosisList(), false
	}

	var list DiagnosisList
	if err := json.Unmarshal(raw, &list); err != nil || len(list.Diagnoses) == 0 {
		return FallbackDiagnosisList(), false
	}

	valid := list.Diagnoses[:0]
	for i, d := range list.Diagnoses {
		if strings.TrimSpace(d.Name) == "" {
			continue
		}
		if strings.TrimSpace(d.ID) == "" {
			d.ID = slugify(d.Name, fmt.Sprintf("diagnosis_%d", i+1))
		}
		d.Confidence = normalizeConfidence(d.Confidence)
		valid = append(valid, d)
	}
	list.Diagnoses = valid
	if len(list.Diagnoses) == 0 {
		return FallbackDiagnosisList(), false
	}

	SortDiagnoses(list.Diagnoses)
	return list, true
}

// FallbackDiagnosisDetail substitutes a generic detail view for a selected
// diagnosis when parsing fails.
func FallbackDiagnosisDetail(id, name string) DiagnosisDetail {
	if name == "" {
		name = unslugify(id)
	}
	return DiagnosisDetail{
		ID:          id,
		Name:        name,
		Description: "We couldn't load a detailed description right now. The general guidance below still applies.",
		SelfCare: []string{
			"Relative rest: keep moving gently within pain-free limits",
			"Ice for 15-20 minutes several times a day for the first 48 hours",
			"Avoid activities that sharply reproduce the pain",
		},
		WhenToSeeDoctor: []string{
			"Severe pain, rapid swelling, or an inability to bear weight",
			"Numbness, pins and needles, or the joint giving way",
			"No improvement after a week of self-care",
		},
		CanSelfTest: false,
	}
}

// ParseDiagnosisDetail extracts and validates the detail payload for the
// given diagnosis.
func ParseDiagnosisDetail(text, id, name string) (DiagnosisDetail, bool) {
	raw, ok := ExtractJSONBlock(text)
	if !ok {
		return FallbackDiagnosisDetail(id, name), false
	}

	var detail DiagnosisDetail
	if err := json.Unmarshal(raw, &detail); err != nil || strings.TrimSpace(detail.Description) == "" {
		return FallbackDiagnosisDetail(id, name), false
	}
	if detail.ID == "" {
		detail.ID = id
	}
	if strings.TrimSpace(detail.Name) == "" {
		detail.Name = name
		if detail.Name == "" {
			detail.Name = unslugify(id)
		}
	}
	return detail, true
}

// FallbackTestPlan is a conservative two-test plan used when the generated
// plan cannot be parsed. The tests are deliberately generic and low-risk.
func FallbackTestPlan() []Test {
	return []Test{
		{
			ID:      "gentle_range_of_motion",
			Name:    "Gentle range of motion",
			Purpose: "Check how far the area moves before pain starts",
			Steps: []string{
				"Sit or stand comfortably with the injured area relaxed",
				"Slowly move the area through its normal range, stopping at the first sign of pain",
				"Note roughly how far you got compared to the uninjured side",
			},
			EstimatedTime: "2 minutes",
			WhatToLookFor: "Noticeably less movement than the other side, or pain well before end of range",
			SafetyNote:    "Stop immediately if pain is sharp or rapidly worsening",
		},
		{
			ID:      "gentle_load_test",
			Name:    "Gentle load test",
			Purpose: "Check how the area tolerates light load",
			Steps: []string{
				"Apply light pressure or weight through the area, starting with a fraction of normal",
				"Increase gradually only while it stays comfortable",
			},
			EstimatedTime: "2 minutes",
			WhatToLookFor: "Pain or giving way under light load",
			SafetyNote:    "Do not push into sharp pain; stop at any instability",
		},
	}
}

// ParseTestPlan extracts and validates an ordered test plan.
func ParseTestPlan(text string) ([]Test, bool) {
	raw, ok := ExtractJSONBlock(text)
	if !ok {
		return FallbackTestPlan(), false
	}

	var payload struct {
		Tests []Test `json:"tests"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Tests) == 0 {
		return FallbackTestPlan(), false
	}

	valid := payload.Tests[:0]
	for i, t := range payload.Tests {
		if strings.TrimSpace(t.Name) == "" || len(t.Steps) == 0 {
			continue
		}
		if strings.TrimSpace(t.ID) == "" {
			t.ID = slugify(t.Name, fmt.Sprintf("test_%d", i+1))
		}
		valid = append(valid, t)
	}
	if len(valid) == 0 {
		return FallbackTestPlan(), false
	}
	return valid, true
}

// FallbackAnalysis is the fixed moderate-confidence structure substituted
// when result analysis cannot be parsed.
func FallbackAnalysis(diagnosisName string) Analysis {
	if diagnosisName == "" {
		diagnosisName = "Soft tissue injury"
	}
	return Analysis{
		RefinedDiagnosis: diagnosisName,
		Confidence:       ConfidenceMedium,
		Summary: "Your test results are consistent with the working diagnosis, but we couldn't " +
			"produce a detailed analysis right now. The plan below is a safe general progression.",
		TreatmentPlan: TreatmentPlan{
			Immediate: []string{
				"Relative rest and ice for 15-20 minutes at a time",
				"Gentle pain-free movement several times a day",
			},
			Week1: []string{
				"Gradually reintroduce daily activities as pain allows",
				"Begin light range-of-motion exercises",
			},
			Weeks2To3: []string{
				"Add progressive strengthening within comfort",
				"Return to light activity, avoiding sharp pain",
			},
			Ongoing: []string{
				"Build back to full activity over several weeks",
				"Keep strengthening to reduce the chance of re-injury",
			},
			RequiresProfessionalCare: false,
		},
		RedFlags: []string{
			"Severe or rapidly worsening pain",
			"Inability to bear weight or use the area at all",
			"Numbness, tingling, or the area giving way",
		},
		RecoveryWindow: "2-6 weeks for most mild to moderate injuries",
	}
}

// ParseAnalysis extracts and validates the refined-diagnosis analysis.
func ParseAnalysis(text, diagnosisName string) (Analysis, bool) {
	raw, ok := ExtractJSONBlock(text)
	if !ok {
		return FallbackAnalysis(diagnosisName), false
	}

	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil || strings.TrimSpace(a.RefinedDiagnosis) == "" {
		return FallbackAnalysis(diagnosisName), false
	}
	a.Confidence = normalizeConfidence(a.Confidence)
	return a, true
}

func slugify(name, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return fallback
	}
	return slug
}

func unslugify(id string) string {
	if id == "" {
		return "Selected condition"
	}
	words := strings.Split(strings.ReplaceAll(id, "_", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
