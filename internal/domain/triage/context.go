package triage

import (
	"encoding/json"
	"fmt"
)

// ContextSchemaVersion is bumped whenever the serialized context shape
// changes incompatibly. Version 0 (absent) is read as version 1.
const ContextSchemaVersion = 1

// ConversationContext is the full resumable state of one conversation at a
// turn boundary. The server holds no memory between turns: everything the
// router needs must round-trip through this object.
type ConversationContext struct {
	SchemaVersion      int              `json:"schemaVersion"`
	Stage              Stage            `json:"stage"`
	CurrentDetails     InjuryDetails    `json:"currentDetails"`
	MissingInfo        []Field          `json:"missingInfo,omitempty"`
	InteractionCount   int              `json:"interactionCount"`
	DiagnosisID        string           `json:"diagnosisId,omitempty"`
	DiagnosisName      string           `json:"diagnosisName,omitempty"`
	DiagnosisDetail    *DiagnosisDetail `json:"diagnosisDetail,omitempty"`
	TestSession        *TestSession     `json:"testSession,omitempty"`
	Analysis           *Analysis        `json:"analysis,omitempty"`
	RefinedTreatment   *TreatmentPlan   `json:"refinedTreatmentPlan,omitempty"`
	TestResults        []TestResult     `json:"testResults,omitempty"`
	ConfirmedDiagnosis bool             `json:"confirmedDiagnosis,omitempty"`
}

// NewContext returns the empty context for a conversation's first turn.
func NewContext() ConversationContext {
	return ConversationContext{
		SchemaVersion: ContextSchemaVersion,
		Stage:         StageGatheringInfo,
	}
}

// Normalize upgrades a client-supplied context to the current schema and
// validates the stage. MissingInfo is always recomputed server-side, so a
// stale or tampered client copy is discarded here rather than trusted.
func (c *ConversationContext) Normalize() error {
	if c.SchemaVersion == 0 {
		c.SchemaVersion = ContextSchemaVersion
	}
	if c.SchemaVersion != ContextSchemaVersion {
		return fmt.Errorf("unsupported context schema version %d", c.SchemaVersion)
	}
	if c.Stage == "" {
		c.Stage = StageGatheringInfo
	}
	if !c.Stage.Valid() {
		return fmt.Errorf("unknown stage %q", c.Stage)
	}
	c.MissingInfo = nil
	if !c.Stage.IsTestStage() {
		c.TestSession = nil
	}
	return nil
}

// Clone returns a deep copy. Handlers never mutate the inbound context; they
// work on a copy and return it, so a failed turn leaves no partial state.
func (c ConversationContext) Clone() ConversationContext {
	out := c
	out.CurrentDetails.Symptoms = append([]string(nil), c.CurrentDetails.Symptoms...)
	out.MissingInfo = append([]Field(nil), c.MissingInfo...)
	out.TestResults = append([]TestResult(nil), c.TestResults...)
	if c.DiagnosisDetail != nil {
		d := *c.DiagnosisDetail
		d.TypicalCauses = append([]string(nil), c.DiagnosisDetail.TypicalCauses...)
		d.SelfCare = append([]string(nil), c.DiagnosisDetail.SelfCare...)
		d.WhenToSeeDoctor = append([]string(nil), c.DiagnosisDetail.WhenToSeeDoctor...)
		out.DiagnosisDetail = &d
	}
	if c.TestSession != nil {
		s := c.TestSession.clone()
		out.TestSession = &s
	}
	if c.Analysis != nil {
		a := *c.Analysis
		a.RedFlags = append([]string(nil), c.Analysis.RedFlags...)
		a.TreatmentPlan = c.Analysis.TreatmentPlan.clone()
		out.Analysis = &a
	}
	if c.RefinedTreatment != nil {
		p := c.RefinedTreatment.clone()
		out.RefinedTreatment = &p
	}
	return out
}

func (s TestSession) clone() TestSession {
	out := s
	out.TestPlan = make([]Test, len(s.TestPlan))
	for i, t := range s.TestPlan {
		t.Steps = append([]string(nil), t.Steps...)
		out.TestPlan[i] = t
	}
	out.TestResults = append([]TestResult(nil), s.TestResults...)
	return out
}

func (p TreatmentPlan) clone() TreatmentPlan {
	return TreatmentPlan{
		Immediate:                append([]string(nil), p.Immediate...),
		Week1:                    append([]string(nil), p.Week1...),
		Weeks2To3:                append([]string(nil), p.Weeks2To3...),
		Ongoing:                  append([]string(nil), p.Ongoing...),
		RequiresProfessionalCare: p.RequiresProfessionalCare,
	}
}

// EncodeContext serializes a context for persistence metadata.
func EncodeContext(c ConversationContext) ([]byte, error) {
	return json.Marshal(c)
}

// DecodeContext restores a serialized context and normalizes it.
func DecodeContext(data []byte) (ConversationContext, error) {
	var c ConversationContext
	if err := json.Unmarshal(data, &c); err != nil {
		return ConversationContext{}, fmt.Errorf("decode context: %w", err)
	}
	if err := c.Normalize(); err != nil {
		return ConversationContext{}, err
	}
	return c, nil
}

// ContextProjection is the minimum slice of context persisted with each
// assistant message so a conversation can be resumed from history.
type ContextProjection struct {
	Stage            Stage          `json:"stage"`
	CurrentDetails   InjuryDetails  `json:"currentDetails"`
	DiagnosisID      string         `json:"diagnosisId,omitempty"`
	DiagnosisName    string         `json:"diagnosisName,omitempty"`
	TestsPlanned     int            `json:"testsPlanned,omitempty"`
	TestsCompleted   int            `json:"testsCompleted,omitempty"`
	Analysis         *Analysis      `json:"analysis,omitempty"`
	RefinedTreatment *TreatmentPlan `json:"refinedTreatmentPlan,omitempty"`
}

// Project reduces the context to its persisted form.
func (c ConversationContext) Project() ContextProjection {
	p := ContextProjection{
		Stage:            c.Stage,
		CurrentDetails:   c.CurrentDetails,
		DiagnosisID:      c.DiagnosisID,
		DiagnosisName:    c.DiagnosisName,
		Analysis:         c.Analysis,
		RefinedTreatment: c.RefinedTreatment,
	}
	if c.TestSession != nil {
		p.TestsPlanned = len(c.TestSession.TestPlan)
		p.TestsCompleted = len(c.TestSession.TestResults)
	}
	return p
}
