package triage

import (
	"strings"
	"testing"
)

func TestExtractJSONBlock_PrefersFencedBlock(t *testing.T) {
	text := "Here you go:\n```json\n{\"a\": 1}\n```\nand also {\"b\": 2} inline"

	raw, ok := ExtractJSONBlock(text)
	if !ok {
		t.Fatal("expected a block")
	}
	if string(raw) != `{"a": 1}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestExtractJSONBlock_FallsBackToBalancedObject(t *testing.T) {
	text := `The answer is {"diagnoses": [{"name": "sprain"}]} as requested.`

	raw, ok := ExtractJSONBlock(text)
	if !ok {
		t.Fatal("expected a block")
	}
	if !strings.Contains(string(raw), "sprain") {
		t.Errorf("raw = %s", raw)
	}
}

func TestExtractJSONBlock_BracesInStringsDoNotConfuse(t *testing.T) {
	text := `{"note": "use } carefully", "ok": true}`

	raw, ok := ExtractJSONBlock(text)
	if !ok || string(raw) != text {
		t.Errorf("raw = %q ok = %v", raw, ok)
	}
}

func TestExtractJSONBlock_NoObject(t *testing.T) {
	if _, ok := ExtractJSONBlock("no json here, sorry"); ok {
		t.Error("expected no block")
	}
	if _, ok := ExtractJSONBlock("{broken json"); ok {
		t.Error("expected invalid object to be rejected")
	}
}

func TestParseDiagnosisList_ValidSortedByConfidence(t *testing.T) {
	text := "```json\n" + `{
		"diagnoses": [
			{"id": "a", "name": "A", "confidence": "low"},
			{"name": "Patellofemoral Pain", "confidence": "high"},
			{"id": "c", "name": "C", "confidence": "banana"}
		],
		"immediateAdvice": "rest"
	}` + "\n```"

	list, ok := ParseDiagnosisList(text)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if len(list.Diagnoses) != 3 {
		t.Fatalf("got %d diagnoses", len(list.Diagnoses))
	}
	if list.Diagnoses[0].Confidence != ConfidenceHigh {
		t.Errorf("first diagnosis = %+v, want high confidence first", list.Diagnoses[0])
	}
	if list.Diagnoses[0].ID != "patellofemoral_pain" {
		t.Errorf("missing id should be slugified, got %q", list.Diagnoses[0].ID)
	}
	if list.Diagnoses[2].Confidence != ConfidenceLow {
		t.Errorf("unknown confidence should clamp to low, got %q", list.Diagnoses[2].Confidence)
	}
}

func TestParseDiagnosisList_GarbageFallsBack(t *testing.T) {
	for _, text := range []string{
		"I am sorry, I cannot help with that.",
		"```json\n{\"diagnoses\": []}\n```",
		"```json\n{\"diagnoses\": [{\"name\": \"\"}]}\n```",
	} {
		list, ok := ParseDiagnosisList(text)
		if ok {
			t.Errorf("%q: expected fallback", text)
		}
		if list.FollowUpQuestion == "" || list.ImmediateAdvice == "" {
			t.Errorf("%q: fallback must carry advice and a question", text)
		}
	}
}

func TestParseTestPlan_DropsUnusableEntries(t *testing.T) {
	text := "```json\n" + `{"tests": [
		{"name": "", "steps": ["x"]},
		{"name": "Squat", "steps": ["stand", "squat"]},
		{"name": "No steps", "steps": []}
	]}` + "\n```"

	plan, ok := ParseTestPlan(text)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if len(plan) != 1 || plan[0].ID != "squat" {
		t.Errorf("plan = %+v", plan)
	}
}

func TestParseTestPlan_FallbackIsUsable(t *testing.T) {
	plan, ok := ParseTestPlan("nope")
	if ok {
		t.Error("expected fallback")
	}
	if len(plan) == 0 {
		t.Fatal("fallback plan is empty")
	}
	for _, test := range plan {
		if test.ID == "" || test.Name == "" || len(test.Steps) == 0 {
			t.Errorf("fallback test incomplete: %+v", test)
		}
	}
}

func TestParseAnalysis_FallbackKeepsDiagnosisName(t *testing.T) {
	a, ok := ParseAnalysis("no json", "Lateral ankle sprain")
	if ok {
		t.Error("expected fallback")
	}
	if a.RefinedDiagnosis != "Lateral ankle sprain" {
		t.Errorf("RefinedDiagnosis = %q", a.RefinedDiagnosis)
	}
	if a.Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %q, want medium", a.Confidence)
	}
	if len(a.RedFlags) == 0 || a.RecoveryWindow == "" {
		t.Error("fallback analysis must carry red flags and a recovery window")
	}
}

func TestParseDiagnosisDetail_FallbackNamesFromID(t *testing.T) {
	d, ok := ParseDiagnosisDetail("nothing structured", "ankle_sprain", "")
	if ok {
		t.Error("expected fallback")
	}
	if d.Name != "Ankle Sprain" {
		t.Errorf("Name = %q", d.Name)
	}
	if len(d.SelfCare) == 0 || len(d.WhenToSeeDoctor) == 0 {
		t.Error("fallback detail must carry guidance")
	}
}
