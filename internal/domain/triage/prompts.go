package triage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Prompt builders for each generation call the orchestrator makes. Each
// template states the exact JSON shape expected back; parse.go enforces it.

func detailsBlock(d InjuryDetails) string {
	var b strings.Builder
	write := func(label, value string) {
		if !isSentinel(value) {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	write("Body part", d.BodyPart)
	if len(d.Symptoms) > 0 {
		fmt.Fprintf(&b, "- Symptoms: %s\n", strings.Join(d.Symptoms, ", "))
	}
	write("Severity", d.Severity)
	write("Duration", d.Duration)
	write("How it happened", d.Mechanism)
	write("Context", d.Context)
	write("Medical history", d.MedicalHistory)
	if b.Len() == 0 {
		return "- (nothing known yet)\n"
	}
	return b.String()
}

func resultsBlock(results []TestResult) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s: %s", r.TestName, r.Result)
		if r.PainLevel != nil && *r.PainLevel > 0 {
			fmt.Fprintf(&b, " (pain %d/10)", *r.PainLevel)
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "- (no results recorded)\n"
	}
	return b.String()
}

// FollowUpQuestionPrompt asks one targeted question covering the still-missing
// details, acknowledging what is already known.
func FollowUpQuestionPrompt(d InjuryDetails, missing []Field) string {
	labels := make([]string, 0, len(missing))
	for _, f := range missing {
		switch f {
		case FieldBodyPart:
			labels = append(labels, "which body part is affected")
		case FieldSymptoms:
			labels = append(labels, "what the symptoms feel like specifically")
		case FieldDuration:
			labels = append(labels, "how long it has been going on")
		case FieldContextOrMechanism:
			labels = append(labels, "how the injury happened or what they were doing")
		}
	}
	return fmt.Sprintf(`You are a physiotherapy triage assistant gathering details about a possible injury.

Known so far:
%s
Still unknown: %s.

Write ONE short, friendly follow-up question that covers the unknown points.
Acknowledge something already shared so the user feels heard. Do not diagnose yet.

Return exactly one JSON object:
{"question": "<the question>"}`, detailsBlock(d), strings.Join(labels, "; "))
}

// DiagnosisListPrompt produces candidate diagnoses. When passages from the
// knowledge base are available they are included and the model is told to
// ground its answer in them; otherwise it relies on general knowledge.
func DiagnosisListPrompt(d InjuryDetails, retrieved string) string {
	grounding := "No reference material is available; answer from general physiotherapy knowledge and keep confidence conservative."
	if retrieved != "" {
		grounding = "Ground your answer in this reference material where it applies:\n" + retrieved
	}
	return fmt.Sprintf(`You are a physiotherapy triage assistant. Based on the injury details below,
list the most likely diagnoses (up to 3, most likely first).

Injury details:
%s
%s

Return exactly one JSON object:
{
  "diagnoses": [
    {"id": "<snake_case_id>", "name": "<condition name>", "confidence": "high|medium|low", "summary": "<one sentence>"}
  ],
  "immediateAdvice": "<what to do right now, 1-2 sentences>",
  "followUpQuestion": "<one question that would best narrow these down>"
}`, detailsBlock(d), grounding)
}

// DiagnosisDetailPrompt expands one selected diagnosis.
func DiagnosisDetailPrompt(id, name string, d InjuryDetails) string {
	return fmt.Sprintf(`You are a physiotherapy triage assistant. The user selected the candidate
diagnosis %q (id %q). Their injury details:

%s
Explain the condition and give practical guidance. Set "canSelfTest" true only
if safe at-home movement tests could help confirm or rule it out.

Return exactly one JSON object:
{
  "id": %q,
  "name": %q,
  "description": "<2-3 sentences in plain language>",
  "selfCare": ["<self-care step>", "..."],
  "whenToSeeDoctor": ["<warning sign>", "..."],
  "canSelfTest": true
}`, name, id, detailsBlock(d), id, name)
}

// TestPlanPrompt asks for an ordered plan of safe at-home diagnostic tests.
func TestPlanPrompt(diagnosisName string, d InjuryDetails) string {
	return fmt.Sprintf(`You are a physiotherapy triage assistant. Design 2-3 safe at-home movement
tests to help confirm or rule out %q. Injury details:

%s
Tests must be safe to perform unsupervised and ordered least to most demanding.

Return exactly one JSON object:
{
  "tests": [
    {
      "id": "<snake_case_id>",
      "name": "<test name>",
      "purpose": "<what it checks>",
      "steps": ["<step 1>", "<step 2>"],
      "estimatedTime": "<e.g. 2 minutes>",
      "whatToLookFor": "<what a positive result looks like>",
      "safetyNote": "<when to stop>"
    }
  ]
}`, diagnosisName, detailsBlock(d))
}

// AnalysisPrompt turns completed (or partial, if stopped) test results into a
// refined diagnosis with a phased treatment plan.
func AnalysisPrompt(diagnosisName string, d InjuryDetails, results []TestResult, stopped bool, stopReason string) string {
	partial := ""
	if stopped {
		partial = fmt.Sprintf("\nThe user stopped testing early (%s); analyze the partial results and be appropriately cautious.\n", stopReason)
	}
	return fmt.Sprintf(`You are a physiotherapy triage assistant. The working diagnosis was %q.
Injury details:

%s
Self-test results:
%s%s
Refine the diagnosis and produce a phased recovery plan.

Return exactly one JSON object:
{
  "refinedDiagnosis": "<condition name>",
  "confidence": "high|medium|low",
  "summary": "<2-3 sentences explaining what the results suggest>",
  "treatmentPlan": {
    "immediate": ["..."],
    "week1": ["..."],
    "weeks2to3": ["..."],
    "ongoing": ["..."],
    "requiresProfessionalCare": false
  },
  "redFlags": ["<sign that needs urgent care>", "..."],
  "recoveryWindow": "<e.g. 2-6 weeks>"
}`, diagnosisName, detailsBlock(d), resultsBlock(results), partial)
}

// TreatmentChatPrompt answers a free-text question inside the treatment
// conversation, anchored to the refined diagnosis and plan.
func TreatmentChatPrompt(a Analysis, question string) string {
	return fmt.Sprintf(`You are a physiotherapy triage assistant in an ongoing recovery conversation.
Diagnosis: %s (confidence %s). Recovery window: %s.
Summary: %s

The user asks: %q

Answer helpfully in 2-4 sentences, staying consistent with the plan above.
Remind them to seek professional care if the question suggests a red flag.

Return exactly one JSON object:
{"answer": "<your answer>"}`, a.RefinedDiagnosis, a.Confidence, a.RecoveryWindow, a.Summary, question)
}

// ConfirmedInjuryChatPrompt answers a question after the user confirmed a
// diagnosis without running self-tests.
func ConfirmedInjuryChatPrompt(diagnosisName, question string) string {
	return fmt.Sprintf(`You are a physiotherapy triage assistant. The user has confirmed their
injury as %q and is asking follow-up questions about managing it.

The user asks: %q

Answer in 2-4 sentences of practical guidance for this condition.

Return exactly one JSON object:
{"answer": "<your answer>"}`, diagnosisName, question)
}

// GeneralHealthPrompt answers a non-injury health question briefly.
func GeneralHealthPrompt(question string) string {
	return fmt.Sprintf(`You are a health information assistant. Answer the question below briefly
and factually, and note that you are not a substitute for medical advice.

Question: %q

Return exactly one JSON object:
{"answer": "<your answer>"}`, question)
}

// ParseAnswer extracts the single-field answer payload used by the chat
// prompts; fallback is returned verbatim on failure.
func ParseAnswer(text, fallback string) (string, bool) {
	raw, ok := ExtractJSONBlock(text)
	if !ok {
		return fallback, false
	}
	var payload struct {
		Answer   string `json:"answer"`
		Question string `json:"question"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fallback, false
	}
	if s := strings.TrimSpace(payload.Answer); s != "" {
		return s, true
	}
	if s := strings.TrimSpace(payload.Question); s != "" {
		return s, true
	}
	return fallback, false
}
