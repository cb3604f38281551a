package triage

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNoSession is returned when a test action arrives without a live
	// session; the caller surfaces it as the ERROR stage with a restart
	// instruction.
	ErrNoSession = errors.New("no diagnostic test session in progress")

	// ErrSessionFinished is returned for actions on a terminal session.
	ErrSessionFinished = errors.New("diagnostic test session already finished")
)

// NewTestSession creates a session positioned at the intro of the first test.
func NewTestSession(plan []Test) *TestSession {
	return &TestSession{TestPlan: plan}
}

// CurrentTest returns the test the session is positioned on, if any.
func (s TestSession) CurrentTest() (Test, bool) {
	if s.CurrentTestIndex < 0 || s.CurrentTestIndex >= len(s.TestPlan) {
		return Test{}, false
	}
	return s.TestPlan[s.CurrentTestIndex], true
}

// AdvanceSession applies one test action to the session and returns the new
// session value plus the conversation stage it lands in. The inbound session
// is never mutated.
//
// The machine is lenient about ordering where leniency cannot lose data:
// next_step from an intro or transition implicitly starts the test, and
// submit_result is accepted mid-step (skipping straight to the outcome).
// stop_test always wins from any non-terminal state, and results already
// recorded are never touched.
func AdvanceSession(stage Stage, s TestSession, resp TestResponse, now time.Time) (TestSession, Stage, error) {
	if !stage.IsTestStage() {
		return s, stage, ErrNoSession
	}
	if stage.IsTerminalTestStage() || s.Stopped {
		return s, stage, ErrSessionFinished
	}
	if len(s.TestPlan) == 0 {
		return s, stage, ErrNoSession
	}

	out := s.clone()

	switch resp.Action {
	case ActionStopTest:
		out.Stopped = true
		out.StopReason = resp.Reason
		if out.StopReason == "" {
			out.StopReason = "stopped by user"
		}
		return out, StageTestStopped, nil

	case ActionStartTest:
		switch stage {
		case StageTestIntro, StageTestTransition:
			out.CurrentStepIndex = 0
			return out, StageTestStep, nil
		case StageTestStep:
			// Duplicate taps are harmless; stay where we are.
			return out, StageTestStep, nil
		default:
			return s, stage, fmt.Errorf("start_test not valid in %s", stage)
		}

	case ActionNextStep:
		switch stage {
		case StageTestIntro, StageTestTransition:
			out.CurrentStepIndex = 0
			return out, StageTestStep, nil
		case StageTestStep:
			test, ok := out.CurrentTest()
			if !ok {
				return s, stage, ErrSessionFinished
			}
			if out.CurrentStepIndex+1 < len(test.Steps) {
				out.CurrentStepIndex++
				return out, StageTestStep, nil
			}
			return out, StageTestResult, nil
		default:
			return s, stage, fmt.Errorf("next_step not valid in %s", stage)
		}

	case ActionSubmitResult:
		test, ok := out.CurrentTest()
		if !ok {
			return s, stage, ErrSessionFinished
		}
		result := resp.Result
		if !result.Valid() {
			result = ResultUnsure
		}
		out.TestResults = append(out.TestResults, TestResult{
			TestID:    test.ID,
			TestName:  test.Name,
			Result:    result,
			PainLevel: resp.PainLevel,
			Timestamp: now,
		})
		if result == ResultStopped {
			out.Stopped = true
			out.StopReason = resp.Reason
			if out.StopReason == "" {
				out.StopReason = "stopped during " + test.Name
			}
			return out, StageTestStopped, nil
		}
		out.CurrentTestIndex++
		out.CurrentStepIndex = 0
		if out.CurrentTestIndex < len(out.TestPlan) {
			return out, StageTestTransition, nil
		}
		return out, StageTestComplete, nil

	default:
		return s, stage, fmt.Errorf("unknown test action %q", resp.Action)
	}
}

// Progress returns the whole-percent progress of the session for the given
// stage. A test contributes its completed-step fraction while in a step,
// counts whole once its result is awaited or submitted, and the value never
// decreases across valid action sequences.
func (s TestSession) Progress(stage Stage) int {
	total := len(s.TestPlan)
	if total == 0 {
		return 0
	}

	units := float64(len(s.TestResults))
	if test, ok := s.CurrentTest(); ok {
		switch stage {
		case StageTestStep:
			if len(test.Steps) > 0 {
				units += float64(s.CurrentStepIndex) / float64(len(test.Steps))
			}
		case StageTestResult:
			units++
		}
	}

	return int(math.Round(100 * units / float64(total)))
}
