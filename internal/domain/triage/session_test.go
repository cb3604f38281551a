package triage

import (
	"testing"
	"time"
)

func twoTestPlan() []Test {
	return []Test{
		{ID: "squat_test", Name: "Single leg squat", Steps: []string{"Stand on the injured leg", "Squat slowly to 45 degrees", "Return to standing"}},
		{ID: "hop_test", Name: "Gentle hop", Steps: []string{"Hop softly on the spot", "Note any pain on landing"}},
	}
}

var testTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func advance(t *testing.T, stage Stage, s TestSession, action TestAction, result ResultValue) (TestSession, Stage) {
	t.Helper()
	out, next, err := AdvanceSession(stage, s, TestResponse{Action: action, Result: result}, testTime)
	if err != nil {
		t.Fatalf("AdvanceSession(%s, %s) error: %v", stage, action, err)
	}
	return out, next
}

func TestAdvanceSession_FullRunCompletesWithAllResults(t *testing.T) {
	s := *NewTestSession(twoTestPlan())
	stage := StageTestIntro

	s, stage = advance(t, stage, s, ActionStartTest, "")
	if stage != StageTestStep {
		t.Fatalf("after start_test stage = %s", stage)
	}

	// Walk all three steps of the first test.
	s, stage = advance(t, stage, s, ActionNextStep, "")
	s, stage = advance(t, stage, s, ActionNextStep, "")
	s, stage = advance(t, stage, s, ActionNextStep, "")
	if stage != StageTestResult {
		t.Fatalf("after final step stage = %s", stage)
	}

	s, stage = advance(t, stage, s, ActionSubmitResult, ResultPositive)
	if stage != StageTestTransition {
		t.Fatalf("after first result stage = %s", stage)
	}

	s, stage = advance(t, stage, s, ActionStartTest, "")
	s, stage = advance(t, stage, s, ActionNextStep, "")
	s, stage = advance(t, stage, s, ActionNextStep, "")
	if stage != StageTestResult {
		t.Fatalf("second test should be at result, stage = %s", stage)
	}

	s, stage = advance(t, stage, s, ActionSubmitResult, ResultNegative)
	if stage != StageTestComplete {
		t.Fatalf("after last result stage = %s", stage)
	}

	if len(s.TestResults) != 2 {
		t.Fatalf("results = %d, want 2", len(s.TestResults))
	}
	if s.TestResults[0].TestID != "squat_test" || s.TestResults[0].Result != ResultPositive {
		t.Errorf("first result = %+v", s.TestResults[0])
	}
	if s.TestResults[1].TestID != "hop_test" || s.TestResults[1].Result != ResultNegative {
		t.Errorf("second result = %+v", s.TestResults[1])
	}
}

func TestAdvanceSession_NextStepImpliesStart(t *testing.T) {
	s := *NewTestSession(twoTestPlan())

	s, stage := advance(t, StageTestIntro, s, ActionNextStep, "")
	if stage != StageTestStep || s.CurrentStepIndex != 0 {
		t.Errorf("next_step from intro: stage=%s step=%d", stage, s.CurrentStepIndex)
	}
}

func TestAdvanceSession_SubmitMidStepSkipsToOutcome(t *testing.T) {
	s := *NewTestSession(twoTestPlan())
	s, stage := advance(t, StageTestIntro, s, ActionStartTest, "")

	s, stage = advance(t, stage, s, ActionSubmitResult, ResultPositive)
	if stage != StageTestTransition {
		t.Fatalf("mid-step submit should land on transition, got %s", stage)
	}
	if len(s.TestResults) != 1 {
		t.Fatalf("results = %d, want 1", len(s.TestResults))
	}
}

func TestAdvanceSession_StopPreservesResults(t *testing.T) {
	s := *NewTestSession(twoTestPlan())
	s, stage := advance(t, StageTestIntro, s, ActionStartTest, "")
	s, stage = advance(t, stage, s, ActionSubmitResult, ResultPositive)

	out, next, err := AdvanceSession(stage, s, TestResponse{Action: ActionStopTest, Reason: "too painful"}, testTime)
	if err != nil {
		t.Fatalf("stop_test error: %v", err)
	}
	if next != StageTestStopped {
		t.Fatalf("stage = %s, want stopped", next)
	}
	if !out.Stopped || out.StopReason != "too painful" {
		t.Errorf("stopped=%v reason=%q", out.Stopped, out.StopReason)
	}
	if len(out.TestResults) != 1 || out.TestResults[0].Result != ResultPositive {
		t.Errorf("stop must not touch recorded results: %v", out.TestResults)
	}
}

func TestAdvanceSession_StoppedResultValueStopsSession(t *testing.T) {
	s := *NewTestSession(twoTestPlan())
	s, stage := advance(t, StageTestIntro, s, ActionStartTest, "")

	out, next, err := AdvanceSession(stage, s, TestResponse{Action: ActionSubmitResult, Result: ResultStopped}, testTime)
	if err != nil {
		t.Fatalf("submit stopped error: %v", err)
	}
	if next != StageTestStopped {
		t.Fatalf("stage = %s, want stopped", next)
	}
	if len(out.TestResults) != 1 || out.TestResults[0].Result != ResultStopped {
		t.Errorf("stopped result should be recorded: %v", out.TestResults)
	}
	if out.StopReason == "" {
		t.Error("expected a default stop reason")
	}
}

func TestAdvanceSession_InvalidResultCoercedToUnsure(t *testing.T) {
	s := *NewTestSession(twoTestPlan())
	s, stage := advance(t, StageTestIntro, s, ActionStartTest, "")

	out, _, err := AdvanceSession(stage, s, TestResponse{Action: ActionSubmitResult, Result: "maybe?"}, testTime)
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	if out.TestResults[0].Result != ResultUnsure {
		t.Errorf("result = %s, want unsure", out.TestResults[0].Result)
	}
}

func TestAdvanceSession_TerminalAndMissingSessions(t *testing.T) {
	s := *NewTestSession(twoTestPlan())

	if _, _, err := AdvanceSession(StageTestComplete, s, TestResponse{Action: ActionNextStep}, testTime); err != ErrSessionFinished {
		t.Errorf("terminal stage error = %v, want ErrSessionFinished", err)
	}
	if _, _, err := AdvanceSession(StageGatheringInfo, s, TestResponse{Action: ActionNextStep}, testTime); err != ErrNoSession {
		t.Errorf("non-test stage error = %v, want ErrNoSession", err)
	}
	if _, _, err := AdvanceSession(StageTestIntro, *NewTestSession(nil), TestResponse{Action: ActionNextStep}, testTime); err != ErrNoSession {
		t.Errorf("empty plan error = %v, want ErrNoSession", err)
	}
}

func TestAdvanceSession_AlwaysTerminates(t *testing.T) {
	// Driving the machine with next_step and submit_result alone must reach a
	// terminal stage in a bounded number of actions.
	s := *NewTestSession(twoTestPlan())
	stage := StageTestIntro

	for i := 0; i < 50; i++ {
		if stage.IsTerminalTestStage() {
			return
		}
		action := ActionNextStep
		if stage == StageTestResult {
			action = ActionSubmitResult
		}
		var err error
		s, stage, err = AdvanceSession(stage, s, TestResponse{Action: action, Result: ResultUnsure}, testTime)
		if err != nil {
			t.Fatalf("step %d (%s): %v", i, action, err)
		}
	}
	t.Fatalf("machine did not terminate, stuck at %s", stage)
}

func TestProgress_MonotoneAcrossFullRun(t *testing.T) {
	s := *NewTestSession(twoTestPlan())
	stage := StageTestIntro
	last := -1

	check := func(label string) {
		t.Helper()
		p := s.Progress(stage)
		if p < last {
			t.Errorf("%s: progress decreased %d -> %d", label, last, p)
		}
		if p < 0 || p > 100 {
			t.Errorf("%s: progress out of range: %d", label, p)
		}
		last = p
	}

	check("intro")
	s, stage = advance(t, stage, s, ActionStartTest, "")
	check("step 1")
	s, stage = advance(t, stage, s, ActionNextStep, "")
	check("step 2")
	s, stage = advance(t, stage, s, ActionNextStep, "")
	check("step 3")
	s, stage = advance(t, stage, s, ActionNextStep, "")
	check("result 1")
	s, stage = advance(t, stage, s, ActionSubmitResult, ResultPositive)
	check("transition")
	s, stage = advance(t, stage, s, ActionNextStep, "")
	check("test 2 step 1")
	s, stage = advance(t, stage, s, ActionNextStep, "")
	check("test 2 step 2")
	s, stage = advance(t, stage, s, ActionNextStep, "")
	check("result 2")
	s, stage = advance(t, stage, s, ActionSubmitResult, ResultNegative)
	check("complete")

	if got := s.Progress(stage); got != 100 {
		t.Errorf("final progress = %d, want 100", got)
	}
}
