package triage

import (
	"time"

	"github.com/triage/triage/internal/platform/retrieval"
)

// Stage is the discrete phase of a conversation. The value crosses the wire
// to the UI and back inside the conversation context, so the names are part
// of the API contract.
type Stage string

const (
	StageGatheringInfo      Stage = "GATHERING_INFO"
	StageDiagnosisList      Stage = "DIAGNOSIS_LIST"
	StageDiagnosisDetail    Stage = "DIAGNOSIS_DETAIL"
	StageTestIntro          Stage = "DIAGNOSTIC_TEST_INTRO"
	StageTestStep           Stage = "DIAGNOSTIC_TEST_STEP"
	StageTestResult         Stage = "DIAGNOSTIC_TEST_RESULT"
	StageTestTransition     Stage = "DIAGNOSTIC_TEST_TRANSITION"
	StageTestStopped        Stage = "DIAGNOSTIC_TEST_STOPPED"
	StageTestComplete       Stage = "DIAGNOSTIC_TEST_COMPLETE"
	StageTreatmentChat      Stage = "TREATMENT_CHAT"
	StageConfirmedInjury    Stage = "CONFIRMED_INJURY_CHAT"
	StageConversational     Stage = "CONVERSATIONAL"
	StageGeneral            Stage = "GENERAL"
	StageError              Stage = "ERROR"
)

var validStages = map[Stage]bool{
	StageGatheringInfo: true, StageDiagnosisList: true, StageDiagnosisDetail: true,
	StageTestIntro: true, StageTestStep: true, StageTestResult: true,
	StageTestTransition: true, StageTestStopped: true, StageTestComplete: true,
	StageTreatmentChat: true, StageConfirmedInjury: true, StageConversational: true,
	StageGeneral: true, StageError: true,
}

func (s Stage) Valid() bool { return validStages[s] }

// IsTestStage reports whether the stage belongs to the diagnostic test
// session machine. The test session is only present while this holds.
func (s Stage) IsTestStage() bool {
	switch s {
	case StageTestIntro, StageTestStep, StageTestResult,
		StageTestTransition, StageTestStopped, StageTestComplete:
		return true
	}
	return false
}

// IsTerminalTestStage reports whether the test machine has finished.
func (s Stage) IsTerminalTestStage() bool {
	return s == StageTestStopped || s == StageTestComplete
}

// InjuryDetails is the structured description of the injury accumulated over
// the information-gathering stage. Field names are the extraction schema the
// generator is asked to fill, so they stay snake_case.
type InjuryDetails struct {
	BodyPart       string   `json:"body_part,omitempty"`
	Symptoms       []string `json:"symptoms,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	Duration       string   `json:"duration,omitempty"`
	Context        string   `json:"context,omitempty"`
	Mechanism      string   `json:"mechanism,omitempty"`
	MedicalHistory string   `json:"medical_history,omitempty"`
}

// IsEmpty reports whether no usable detail has been collected yet.
func (d InjuryDetails) IsEmpty() bool {
	return isSentinel(d.BodyPart) && len(d.Symptoms) == 0 && isSentinel(d.Severity) &&
		isSentinel(d.Duration) && isSentinel(d.Context) && isSentinel(d.Mechanism) &&
		isSentinel(d.MedicalHistory)
}

// ResultValue is the outcome of one diagnostic test.
type ResultValue string

const (
	ResultPositive ResultValue = "positive"
	ResultNegative ResultValue = "negative"
	ResultUnsure   ResultValue = "unsure"
	ResultStopped  ResultValue = "stopped"
)

var validResults = map[ResultValue]bool{
	ResultPositive: true, ResultNegative: true, ResultUnsure: true, ResultStopped: true,
}

func (r ResultValue) Valid() bool { return validResults[r] }

// Test is one self-administered diagnostic test in the plan.
type Test struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Purpose       string   `json:"purpose,omitempty"`
	Steps         []string `json:"steps"`
	EstimatedTime string   `json:"estimatedTime,omitempty"`
	WhatToLookFor string   `json:"whatToLookFor,omitempty"`
	SafetyNote    string   `json:"safetyNote,omitempty"`
}

// TestResult records the submitted outcome of one test. Results are
// append-only; nothing ever removes or rewrites an entry.
type TestResult struct {
	TestID    string      `json:"testId"`
	TestName  string      `json:"testName"`
	Result    ResultValue `json:"result"`
	PainLevel *int        `json:"painLevel,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TestSession tracks progress through the ordered test plan.
// Invariant: 0 <= CurrentTestIndex <= len(TestPlan); CurrentStepIndex is
// meaningful only while CurrentTestIndex < len(TestPlan).
type TestSession struct {
	TestPlan         []Test       `json:"testPlan"`
	CurrentTestIndex int          `json:"currentTestIndex"`
	CurrentStepIndex int          `json:"currentStepIndex"`
	TestResults      []TestResult `json:"testResults"`
	Stopped          bool         `json:"stopped"`
	StopReason       string       `json:"stopReason,omitempty"`
}

// Confidence tiers, displayed high first.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Diagnosis is one candidate in the generated diagnosis list.
type Diagnosis struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Confidence       string   `json:"confidence"`
	ShortDescription string   `json:"shortDescription,omitempty"`
	MatchedSymptoms  []string `json:"matchedSymptoms,omitempty"`
	TypicalCauses    []string `json:"typicalCauses,omitempty"`
}

// DiagnosisList is the structured payload expected inside the generator's
// diagnosis-list response.
type DiagnosisList struct {
	Diagnoses        []Diagnosis `json:"diagnoses"`
	ImmediateAdvice  string      `json:"immediateAdvice,omitempty"`
	FollowUpQuestion string      `json:"followUpQuestion,omitempty"`
}

// DiagnosisDetail is the expanded view of one selected diagnosis.
type DiagnosisDetail struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	TypicalCauses   []string `json:"typicalCauses,omitempty"`
	SelfCare        []string `json:"selfCare,omitempty"`
	WhenToSeeDoctor []string `json:"whenToSeeDoctor,omitempty"`
	CanSelfTest     bool     `json:"canSelfTest,omitempty"`
}

// TreatmentPlan is the phase-structured plan produced by result analysis.
type TreatmentPlan struct {
	Immediate                []string `json:"immediate,omitempty"`
	Week1                    []string `json:"week1,omitempty"`
	Weeks2To3                []string `json:"weeks2to3,omitempty"`
	Ongoing                  []string `json:"ongoing,omitempty"`
	RequiresProfessionalCare bool     `json:"requiresProfessionalCare,omitempty"`
}

// Analysis is the refined diagnosis produced once all tests are submitted.
type Analysis struct {
	RefinedDiagnosis string        `json:"refinedDiagnosis"`
	Confidence       string        `json:"confidence"`
	Summary          string        `json:"summary,omitempty"`
	TreatmentPlan    TreatmentPlan `json:"treatmentPlan"`
	RedFlags         []string      `json:"redFlags,omitempty"`
	RecoveryWindow   string        `json:"recoveryWindow,omitempty"`
}

// TestAction is one input to the diagnostic test session machine.
type TestAction string

const (
	ActionStartTest    TestAction = "start_test"
	ActionNextStep     TestAction = "next_step"
	ActionSubmitResult TestAction = "submit_result"
	ActionStopTest     TestAction = "stop_test"
)

// TestResponse is the explicit test-response payload submitted by the UI.
type TestResponse struct {
	Action    TestAction  `json:"action"`
	Result    ResultValue `json:"result,omitempty"`
	PainLevel *int        `json:"painLevel,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// ActionFlags carries the explicit UI actions attached to a turn. Several may
// be set at once on degenerate input; the router resolves them in a fixed
// priority order.
type ActionFlags struct {
	DiagnosisID         string        `json:"diagnosisId,omitempty"`
	StartDiagnosticTest bool          `json:"startDiagnosticTest,omitempty"`
	TestResponse        *TestResponse `json:"testResponse,omitempty"`
	StartTreatmentChat  bool          `json:"startTreatmentChat,omitempty"`
	ConfirmInjury       bool          `json:"confirmInjury,omitempty"`
	ExitDiagnosticTest  bool          `json:"exitDiagnosticTest,omitempty"`
	SelectedSymptoms    *[]string     `json:"selectedSymptoms,omitempty"`
}

// ChatTurn is one prior message in the transcript sent with a turn.
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// TurnRequest is the inbound turn consumed by the router.
type TurnRequest struct {
	Message        string               `json:"message"`
	ChatID         string               `json:"chatId,omitempty"`
	ChatHistory    []ChatTurn           `json:"chatHistory,omitempty"`
	CurrentContext *ConversationContext `json:"currentContext,omitempty"`
	ActionFlags    ActionFlags          `json:"actionFlags"`
}

// TestSessionView is the stage-specific rendering of the test session.
type TestSessionView struct {
	TestNumber    int    `json:"testNumber"`
	TestCount     int    `json:"testCount"`
	TestName      string `json:"testName,omitempty"`
	Purpose       string `json:"purpose,omitempty"`
	StepNumber    int    `json:"stepNumber,omitempty"`
	StepCount     int    `json:"stepCount,omitempty"`
	StepText      string `json:"stepText,omitempty"`
	EstimatedTime string `json:"estimatedTime,omitempty"`
	WhatToLookFor string `json:"whatToLookFor,omitempty"`
	SafetyNote    string `json:"safetyNote,omitempty"`
	Progress      int    `json:"progress"`
	Stopped       bool   `json:"stopped,omitempty"`
}

// Provenance labels for generated content.
const (
	ProvenanceGrounded   = "grounded"
	ProvenanceUnverified = "unverified"
)

// TurnResponse is the payload returned to the caller. CurrentContext must be
// echoed back unchanged on the next turn.
type TurnResponse struct {
	Stage            Stage               `json:"stage"`
	Response         string              `json:"response,omitempty"`
	Diagnoses        []Diagnosis         `json:"diagnoses,omitempty"`
	DiagnosisDetail  *DiagnosisDetail    `json:"diagnosisDetail,omitempty"`
	TestSession      *TestSessionView    `json:"testSession,omitempty"`
	Analysis         *Analysis           `json:"analysis,omitempty"`
	SymptomChecklist []string            `json:"symptomChecklist,omitempty"`
	Sources          []retrieval.Source  `json:"sources,omitempty"`
	Provenance       string              `json:"provenance,omitempty"`
	ChatID           string              `json:"chatId,omitempty"`
	CurrentContext   ConversationContext `json:"currentContext"`
	NextAction       string              `json:"nextAction,omitempty"`
	UIHint           string              `json:"uiHint,omitempty"`
}
