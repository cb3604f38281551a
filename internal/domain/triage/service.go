package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/platform/llm"
	"github.com/triage/triage/internal/platform/retrieval"
)

// Service is the conversation orchestrator. It holds no per-conversation
// state: every turn rebuilds its view of the world from the request's
// conversation context and returns the updated context for the client to
// echo back.
//
// A turn makes at most one retrieval call and one generation call. Detail
// extraction and message classification are keyword passes.
type Service struct {
	gen       llm.Generator
	retriever retrieval.Retriever
	chats     ChatRepository
	messages  MessageRepository
	logger    zerolog.Logger
	retry     RetryPolicy
	now       func() time.Time
}

func NewService(gen llm.Generator, retriever retrieval.Retriever, chats ChatRepository, messages MessageRepository, logger zerolog.Logger) *Service {
	return &Service{
		gen:       gen,
		retriever: retriever,
		chats:     chats,
		messages:  messages,
		logger:    logger,
		retry:     DefaultRetryPolicy(),
		now:       time.Now,
	}
}

// HandleTurn routes one turn through the stage machine. Explicit action flags
// always outrank the free-text message, and flags are resolved in a fixed
// priority order so degenerate requests carrying several flags stay
// deterministic.
func (s *Service) HandleTurn(ctx context.Context, userID string, req TurnRequest) (TurnResponse, error) {
	cc := NewContext()
	if req.CurrentContext != nil {
		cc = req.CurrentContext.Clone()
		if err := cc.Normalize(); err != nil {
			return TurnResponse{}, fmt.Errorf("invalid conversation context: %w", err)
		}
	}

	flags := req.ActionFlags
	var resp TurnResponse

	switch {
	case flags.ConfirmInjury:
		resp = s.handleConfirmInjury(ctx, cc, req.Message)
	case flags.StartTreatmentChat:
		resp = s.handleStartTreatmentChat(ctx, cc, req.Message)
	case flags.ExitDiagnosticTest:
		resp = s.handleExitTest(cc)
	case flags.SelectedSymptoms != nil:
		cc.CurrentDetails.Symptoms = unionSymptoms(cc.CurrentDetails.Symptoms, *flags.SelectedSymptoms)
		resp = s.handleGathering(ctx, cc, req.Message)
	case flags.TestResponse != nil:
		resp = s.handleTestResponse(ctx, cc, *flags.TestResponse)
	case flags.StartDiagnosticTest:
		resp = s.handleStartTest(ctx, cc)
	case flags.DiagnosisID != "":
		resp = s.handleSelectDiagnosis(ctx, cc, flags.DiagnosisID)
	case cc.Stage == StageDiagnosisList && !cc.CurrentDetails.IsEmpty():
		resp = s.handleGathering(ctx, cc, req.Message)
	case cc.Stage == StageGatheringInfo && (cc.InteractionCount > 0 || !cc.CurrentDetails.IsEmpty()):
		// A conversation already underway stays in gathering; a brand-new one
		// falls through to classification below.
		resp = s.handleGathering(ctx, cc, req.Message)
	case cc.Stage == StageTreatmentChat:
		resp = s.handleTreatmentChat(ctx, cc, req.Message)
	case cc.Stage == StageConfirmedInjury:
		resp = s.handleConfirmedChat(ctx, cc, req.Message)
	case !cc.CurrentDetails.IsEmpty():
		resp = s.handleGathering(ctx, cc, req.Message)
	default:
		switch ClassifyMessage(req.Message) {
		case KindInjury:
			resp = s.handleGathering(ctx, cc, req.Message)
		case KindGeneralHealth:
			resp = s.handleGeneral(ctx, cc, req.Message)
		default:
			resp = s.handleConversational(cc)
		}
	}

	s.persistTurn(ctx, userID, req, &resp)
	return resp, nil
}

// ---------------------------------------------------------------------------
// Information gathering and diagnosis
// ---------------------------------------------------------------------------

func (s *Service) handleGathering(ctx context.Context, cc ConversationContext, message string) TurnResponse {
	if strings.TrimSpace(message) != "" {
		cc.CurrentDetails = MergeDetails(cc.CurrentDetails, ExtractDetails(message))
	}

	missing := s.retry.Missing(cc.CurrentDetails, cc.InteractionCount)
	if len(missing) > 0 {
		cc.InteractionCount++
		cc.Stage = StageGatheringInfo
		cc.MissingInfo = missing

		fallback := "Could you tell me a bit more about the injury: where it hurts, what it feels like, and how it happened?"
		question, _ := ParseAnswer(s.generate(ctx, FollowUpQuestionPrompt(cc.CurrentDetails, missing)), fallback)
		return TurnResponse{
			Stage:          StageGatheringInfo,
			Response:       question,
			CurrentContext: cc,
			NextAction:     "answer the question",
			UIHint:         "free_text",
		}
	}

	return s.diagnose(ctx, cc)
}

// diagnose makes the turn's retrieval and generation calls to build the
// diagnosis list. Retrieval failure is not a turn failure: the list is
// generated ungrounded and labeled unverified.
func (s *Service) diagnose(ctx context.Context, cc ConversationContext) TurnResponse {
	result := retrieval.Degraded()
	if s.retriever != nil {
		r, err := s.retriever.Retrieve(ctx, detailsQuery(cc.CurrentDetails), retrieval.Hints{
			BodyPartID: strings.ReplaceAll(cc.CurrentDetails.BodyPart, " ", "_"),
		})
		if err != nil {
			s.logger.Warn().Err(err).Msg("retrieval failed, generating ungrounded")
		} else {
			result = r
		}
	}

	retrieved := ""
	if result.RAGUsed {
		retrieved = result.Context
	}
	list, parsed := ParseDiagnosisList(s.generate(ctx, DiagnosisListPrompt(cc.CurrentDetails, retrieved)))
	if !parsed {
		s.logger.Warn().Msg("diagnosis list parse failed, using fallback")
	}

	cc.Stage = StageDiagnosisList
	provenance := ProvenanceUnverified
	if result.RAGUsed && parsed {
		provenance = ProvenanceGrounded
	}

	resp := TurnResponse{
		Stage:            StageDiagnosisList,
		Response:         list.ImmediateAdvice,
		Diagnoses:        list.Diagnoses,
		SymptomChecklist: symptomChecklist(list.Diagnoses),
		Provenance:       provenance,
		CurrentContext:   cc,
		NextAction:       "select a diagnosis",
		UIHint:           "diagnosis_cards",
	}
	if list.FollowUpQuestion != "" {
		resp.Response = strings.TrimSpace(resp.Response + " " + list.FollowUpQuestion)
	}
	if result.RAGUsed {
		resp.Sources = result.Sources
	}
	return resp
}

func (s *Service) handleSelectDiagnosis(ctx context.Context, cc ConversationContext, id string) TurnResponse {
	name := ""
	if cc.DiagnosisID == id {
		name = cc.DiagnosisName
	}
	detail, parsed := ParseDiagnosisDetail(s.generate(ctx, DiagnosisDetailPrompt(id, name, cc.CurrentDetails)), id, name)
	if !parsed {
		s.logger.Warn().Str("diagnosis_id", id).Msg("diagnosis detail parse failed, using fallback")
	}

	cc.Stage = StageDiagnosisDetail
	cc.DiagnosisID = detail.ID
	cc.DiagnosisName = detail.Name
	cc.DiagnosisDetail = &detail

	next := "confirm the injury"
	if detail.CanSelfTest {
		next = "start diagnostic tests or confirm the injury"
	}
	return TurnResponse{
		Stage:           StageDiagnosisDetail,
		Response:        detail.Description,
		DiagnosisDetail: &detail,
		CurrentContext:  cc,
		NextAction:      next,
		UIHint:          "diagnosis_detail",
	}
}

// ---------------------------------------------------------------------------
// Diagnostic test session
// ---------------------------------------------------------------------------

func (s *Service) handleStartTest(ctx context.Context, cc ConversationContext) TurnResponse {
	if cc.DiagnosisID == "" {
		return s.sessionError(cc, "Select a diagnosis before starting diagnostic tests.")
	}

	plan, parsed := ParseTestPlan(s.generate(ctx, TestPlanPrompt(cc.DiagnosisName, cc.CurrentDetails)))
	if !parsed {
		s.logger.Warn().Str("diagnosis_id", cc.DiagnosisID).Msg("test plan parse failed, using fallback plan")
	}

	session := NewTestSession(plan)
	cc.Stage = StageTestIntro
	cc.TestSession = session

	first := plan[0]
	return TurnResponse{
		Stage: StageTestIntro,
		Response: fmt.Sprintf("We'll run %d quick tests to narrow this down. First: %s. %s",
			len(plan), first.Name, first.Purpose),
		TestSession:    sessionView(*session, StageTestIntro),
		CurrentContext: cc,
		NextAction:     "start_test",
		UIHint:         "test_intro",
	}
}

func (s *Service) handleTestResponse(ctx context.Context, cc ConversationContext, tr TestResponse) TurnResponse {
	if cc.TestSession == nil || !cc.Stage.IsTestStage() {
		return s.sessionError(cc, "There's no diagnostic test in progress. Restart the tests to continue.")
	}

	session, stage, err := AdvanceSession(cc.Stage, *cc.TestSession, tr, s.now())
	if err != nil {
		// Results already recorded survive the dead session.
		leaveTestSession(&cc)
		return s.sessionError(cc, "That action isn't valid right now. Restart the tests to continue.")
	}

	cc.Stage = stage
	cc.TestSession = &session

	resp := TurnResponse{
		Stage:          stage,
		TestSession:    sessionView(session, stage),
		CurrentContext: cc,
	}

	switch stage {
	case StageTestStep:
		test, _ := session.CurrentTest()
		resp.Response = test.Steps[session.CurrentStepIndex]
		resp.NextAction = "next_step"
		resp.UIHint = "test_step"
	case StageTestResult:
		test, _ := session.CurrentTest()
		resp.Response = fmt.Sprintf("How did that go? %s", test.WhatToLookFor)
		resp.NextAction = "submit_result"
		resp.UIHint = "test_result"
	case StageTestTransition:
		test, _ := session.CurrentTest()
		resp.Response = fmt.Sprintf("Next up: %s. %s", test.Name, test.Purpose)
		resp.NextAction = "start_test"
		resp.UIHint = "test_transition"
	case StageTestComplete, StageTestStopped:
		return s.analyzeResults(ctx, cc, session, stage)
	}
	return resp
}

// analyzeResults generates the refined diagnosis once the session ends,
// whether completed or stopped early.
func (s *Service) analyzeResults(ctx context.Context, cc ConversationContext, session TestSession, stage Stage) TurnResponse {
	cc.TestResults = append([]TestResult(nil), session.TestResults...)

	analysis, parsed := ParseAnalysis(
		s.generate(ctx, AnalysisPrompt(cc.DiagnosisName, cc.CurrentDetails, session.TestResults, session.Stopped, session.StopReason)),
		cc.DiagnosisName,
	)
	if !parsed {
		s.logger.Warn().Str("diagnosis_id", cc.DiagnosisID).Msg("analysis parse failed, using fallback")
	}
	if session.Stopped && analysis.Confidence == ConfidenceHigh {
		// Partial results never justify high confidence.
		analysis.Confidence = ConfidenceMedium
	}

	cc.Analysis = &analysis
	plan := analysis.TreatmentPlan.clone()
	cc.RefinedTreatment = &plan

	body := analysis.Summary
	if stage == StageTestStopped {
		body = "No problem, we've stopped the tests. " + body
	}
	return TurnResponse{
		Stage:          stage,
		Response:       body,
		Analysis:       &analysis,
		TestSession:    sessionView(session, stage),
		CurrentContext: cc,
		NextAction:     "start treatment chat",
		UIHint:         "analysis",
	}
}

func (s *Service) handleExitTest(cc ConversationContext) TurnResponse {
	leaveTestSession(&cc)
	if cc.DiagnosisDetail != nil {
		cc.Stage = StageDiagnosisDetail
		return TurnResponse{
			Stage:           StageDiagnosisDetail,
			Response:        "Okay, we've left the tests. Here's the condition overview again.",
			DiagnosisDetail: cc.DiagnosisDetail,
			CurrentContext:  cc,
			NextAction:      "confirm the injury",
			UIHint:          "diagnosis_detail",
		}
	}
	cc.Stage = StageDiagnosisList
	return TurnResponse{
		Stage:          StageDiagnosisList,
		Response:       "Okay, we've left the tests. You can pick a diagnosis to explore.",
		CurrentContext: cc,
		NextAction:     "select a diagnosis",
		UIHint:         "diagnosis_cards",
	}
}

func (s *Service) sessionError(cc ConversationContext, msg string) TurnResponse {
	cc.Stage = StageError
	cc.TestSession = nil
	return TurnResponse{
		Stage:          StageError,
		Response:       msg,
		CurrentContext: cc,
		NextAction:     "restart diagnostic tests",
	}
}

// ---------------------------------------------------------------------------
// Confirmation and ongoing chats
// ---------------------------------------------------------------------------

func (s *Service) handleConfirmInjury(ctx context.Context, cc ConversationContext, message string) TurnResponse {
	if cc.DiagnosisID == "" {
		return s.sessionError(cc, "Select a diagnosis before confirming it.")
	}
	leaveTestSession(&cc)
	cc.ConfirmedDiagnosis = true
	cc.Stage = StageConfirmedInjury

	body := fmt.Sprintf("Got it, we'll treat this as %s. Ask me anything about managing it.", cc.DiagnosisName)
	if strings.TrimSpace(message) != "" {
		body, _ = ParseAnswer(s.generate(ctx, ConfirmedInjuryChatPrompt(cc.DiagnosisName, message)), body)
	}
	return TurnResponse{
		Stage:          StageConfirmedInjury,
		Response:       body,
		CurrentContext: cc,
		NextAction:     "ask a question",
		UIHint:         "chat",
	}
}

func (s *Service) handleStartTreatmentChat(ctx context.Context, cc ConversationContext, message string) TurnResponse {
	if cc.Analysis == nil {
		return s.sessionError(cc, "Complete the diagnostic tests before starting the treatment chat.")
	}
	leaveTestSession(&cc)
	cc.Stage = StageTreatmentChat

	body := fmt.Sprintf("Let's work on your recovery from %s. Ask me anything about the plan.", cc.Analysis.RefinedDiagnosis)
	if strings.TrimSpace(message) != "" {
		body, _ = ParseAnswer(s.generate(ctx, TreatmentChatPrompt(*cc.Analysis, message)), body)
	}
	return TurnResponse{
		Stage:          StageTreatmentChat,
		Response:       body,
		Analysis:       cc.Analysis,
		CurrentContext: cc,
		NextAction:     "ask a question",
		UIHint:         "chat",
	}
}

func (s *Service) handleTreatmentChat(ctx context.Context, cc ConversationContext, message string) TurnResponse {
	if cc.Analysis == nil {
		return s.handleGathering(ctx, cc, message)
	}
	fallback := "I couldn't answer that just now. Could you rephrase the question?"
	body, _ := ParseAnswer(s.generate(ctx, TreatmentChatPrompt(*cc.Analysis, message)), fallback)
	return TurnResponse{
		Stage:          StageTreatmentChat,
		Response:       body,
		CurrentContext: cc,
		NextAction:     "ask a question",
		UIHint:         "chat",
	}
}

func (s *Service) handleConfirmedChat(ctx context.Context, cc ConversationContext, message string) TurnResponse {
	fallback := "I couldn't answer that just now. Could you rephrase the question?"
	body, _ := ParseAnswer(s.generate(ctx, ConfirmedInjuryChatPrompt(cc.DiagnosisName, message)), fallback)
	return TurnResponse{
		Stage:          StageConfirmedInjury,
		Response:       body,
		CurrentContext: cc,
		NextAction:     "ask a question",
		UIHint:         "chat",
	}
}

func (s *Service) handleGeneral(ctx context.Context, cc ConversationContext, message string) TurnResponse {
	cc.Stage = StageGeneral
	fallback := "I can help best with injury questions, but feel free to ask me something else."
	body, _ := ParseAnswer(s.generate(ctx, GeneralHealthPrompt(message)), fallback)
	return TurnResponse{
		Stage:          StageGeneral,
		Response:       body,
		CurrentContext: cc,
		UIHint:         "chat",
	}
}

func (s *Service) handleConversational(cc ConversationContext) TurnResponse {
	cc.Stage = StageConversational
	return TurnResponse{
		Stage: StageConversational,
		Response: "I'm here to help with injuries and aches. If something hurts, " +
			"tell me where and what it feels like and we'll work out what's going on.",
		CurrentContext: cc,
		UIHint:         "chat",
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// generate swallows generation errors: every caller has a validated fallback,
// so a model outage degrades content instead of failing the turn.
func (s *Service) generate(ctx context.Context, prompt string) string {
	if s.gen == nil {
		return ""
	}
	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn().Err(err).Msg("generation failed, falling back to fixed content")
		return ""
	}
	return out
}

func leaveTestSession(cc *ConversationContext) {
	if cc.TestSession != nil && len(cc.TestSession.TestResults) > 0 {
		cc.TestResults = append([]TestResult(nil), cc.TestSession.TestResults...)
	}
	cc.TestSession = nil
}

func detailsQuery(d InjuryDetails) string {
	parts := make([]string, 0, 4)
	if !isSentinel(d.BodyPart) {
		parts = append(parts, d.BodyPart)
	}
	parts = append(parts, d.Symptoms...)
	if !isSentinel(d.Mechanism) {
		parts = append(parts, d.Mechanism)
	}
	return strings.Join(parts, " ")
}

func symptomChecklist(ds []Diagnosis) []string {
	var out []string
	for _, d := range ds {
		out = unionSymptoms(out, d.MatchedSymptoms)
	}
	return out
}

func sessionView(s TestSession, stage Stage) *TestSessionView {
	view := &TestSessionView{
		TestCount: len(s.TestPlan),
		Progress:  s.Progress(stage),
		Stopped:   s.Stopped,
	}
	test, ok := s.CurrentTest()
	if !ok {
		view.TestNumber = len(s.TestPlan)
		return view
	}
	view.TestNumber = s.CurrentTestIndex + 1
	view.TestName = test.Name
	view.Purpose = test.Purpose
	view.EstimatedTime = test.EstimatedTime
	view.WhatToLookFor = test.WhatToLookFor
	view.SafetyNote = test.SafetyNote
	if stage == StageTestStep && s.CurrentStepIndex < len(test.Steps) {
		view.StepNumber = s.CurrentStepIndex + 1
		view.StepCount = len(test.Steps)
		view.StepText = test.Steps[s.CurrentStepIndex]
	}
	return view
}

// persistTurn writes the turn to history best-effort. Persistence problems
// are logged and never surfaced: the conversation itself lives in the
// round-tripped context, not the database.
func (s *Service) persistTurn(ctx context.Context, userID string, req TurnRequest, resp *TurnResponse) {
	if s.chats == nil || s.messages == nil {
		return
	}

	chatID, err := uuid.Parse(req.ChatID)
	if err != nil || chatID == uuid.Nil {
		chatID = uuid.New()
	}
	resp.ChatID = chatID.String()

	chat := &Chat{
		ID:     chatID,
		UserID: userID,
		Title:  chatTitle(resp.CurrentContext, req.Message),
		Stage:  resp.Stage,
	}
	if resp.CurrentContext.DiagnosisName != "" {
		chat.Summary = resp.CurrentContext.DiagnosisName
	}
	if err := s.chats.Upsert(ctx, chat); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID.String()).Msg("chat upsert failed")
		return
	}

	if strings.TrimSpace(req.Message) != "" {
		if err := s.messages.Append(ctx, &Message{ChatID: chatID, Sender: SenderUser, Body: req.Message}); err != nil {
			s.logger.Warn().Err(err).Str("chat_id", chatID.String()).Msg("user message append failed")
		}
	}
	projection := resp.CurrentContext.Project()
	if err := s.messages.Append(ctx, &Message{
		ChatID:   chatID,
		Sender:   SenderAssistant,
		Body:     resp.Response,
		Metadata: &projection,
	}); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID.String()).Msg("assistant message append failed")
	}
}

func chatTitle(cc ConversationContext, message string) string {
	switch {
	case cc.DiagnosisName != "":
		return cc.DiagnosisName
	case !isSentinel(cc.CurrentDetails.BodyPart):
		return strings.TrimSpace(cc.CurrentDetails.BodyPart + " injury")
	}
	message = strings.TrimSpace(message)
	if len(message) > 60 {
		message = message[:60]
	}
	if message == "" {
		message = "New conversation"
	}
	return message
}
