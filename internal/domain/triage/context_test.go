package triage

import (
	"reflect"
	"testing"
)

func TestContext_EncodeDecodeRoundTrip(t *testing.T) {
	cc := NewContext()
	cc.Stage = StageTestStep
	cc.CurrentDetails = InjuryDetails{BodyPart: "ankle", Symptoms: []string{"swelling", "sharp pain"}, Duration: "yesterday"}
	cc.InteractionCount = 2
	cc.DiagnosisID = "ankle_sprain"
	cc.DiagnosisName = "Lateral ankle sprain"
	cc.TestSession = NewTestSession(twoTestPlan())
	cc.TestSession.CurrentStepIndex = 1

	data, err := EncodeContext(cc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeContext(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(cc, decoded) {
		t.Errorf("round trip mismatch:\nin:  %+v\nout: %+v", cc, decoded)
	}
}

func TestNormalize_VersionZeroUpgrades(t *testing.T) {
	cc := ConversationContext{Stage: StageDiagnosisList}
	if err := cc.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cc.SchemaVersion != ContextSchemaVersion {
		t.Errorf("SchemaVersion = %d", cc.SchemaVersion)
	}
}

func TestNormalize_FutureVersionRejected(t *testing.T) {
	cc := ConversationContext{SchemaVersion: 99}
	if err := cc.Normalize(); err == nil {
		t.Error("expected error for unsupported schema version")
	}
}

func TestNormalize_UnknownStageRejected(t *testing.T) {
	cc := ConversationContext{Stage: "DANCING"}
	if err := cc.Normalize(); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestNormalize_DiscardsClientMissingInfoAndStaleSession(t *testing.T) {
	cc := ConversationContext{
		Stage:       StageDiagnosisList,
		MissingInfo: []Field{FieldBodyPart},
		TestSession: NewTestSession(twoTestPlan()),
	}
	if err := cc.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cc.MissingInfo != nil {
		t.Error("client-supplied missingInfo must be discarded")
	}
	if cc.TestSession != nil {
		t.Error("session outside test stages must be cleared")
	}
}

func TestNormalize_EmptyStageDefaultsToGathering(t *testing.T) {
	cc := ConversationContext{}
	if err := cc.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cc.Stage != StageGatheringInfo {
		t.Errorf("Stage = %s", cc.Stage)
	}
}

func TestClone_IsDeep(t *testing.T) {
	cc := NewContext()
	cc.Stage = StageTestStep
	cc.CurrentDetails.Symptoms = []string{"swelling"}
	cc.TestSession = NewTestSession(twoTestPlan())

	clone := cc.Clone()
	clone.CurrentDetails.Symptoms[0] = "mutated"
	clone.TestSession.TestPlan[0].Steps[0] = "mutated"

	if cc.CurrentDetails.Symptoms[0] != "swelling" {
		t.Error("symptoms share backing storage with clone")
	}
	if cc.TestSession.TestPlan[0].Steps[0] == "mutated" {
		t.Error("test plan shares backing storage with clone")
	}
}

func TestProject_SummarizesSession(t *testing.T) {
	cc := NewContext()
	cc.Stage = StageTestTransition
	cc.DiagnosisID = "ankle_sprain"
	cc.TestSession = NewTestSession(twoTestPlan())
	cc.TestSession.TestResults = []TestResult{{TestID: "squat_test", Result: ResultPositive}}

	p := cc.Project()
	if p.TestsPlanned != 2 || p.TestsCompleted != 1 {
		t.Errorf("projection = %+v", p)
	}
	if p.DiagnosisID != "ankle_sprain" || p.Stage != StageTestTransition {
		t.Errorf("projection = %+v", p)
	}
}
