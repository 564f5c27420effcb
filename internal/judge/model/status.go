package model

import "fuzoj/internal/judge/sandbox/result"

// JudgeStatusResponse is returned to API clients polling or subscribing to a
// submission's judge status.
type JudgeStatusResponse struct {
	SubmissionID string                  `json:"submission_id"`
	Status       result.JudgeStatus      `json:"status"`
	Verdict      result.Verdict          `json:"verdict"`
	Score        int                     `json:"score"`
	Language     string                  `json:"language"`
	Summary      result.SummaryStat      `json:"summary"`
	Compile      *result.CompileResult   `json:"compile,omitempty"`
	Tests        []result.TestcaseResult `json:"tests,omitempty"`
	Timestamps   result.Timestamps       `json:"timestamps"`
	Progress     Progress                `json:"progress"`
	ErrorCode    int                     `json:"error_code,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
}

// Progress reports how many tests have finished running for a submission.
type Progress struct {
	TotalTests int `json:"total_tests"`
	DoneTests  int `json:"done_tests"`
}

// StatusEventType identifies the kind of status event carried through the
// broker for asynchronous fan-out (websocket push, outbox sweep, audit log).
type StatusEventType string

const (
	// StatusEventFinal marks a submission's terminal verdict.
	StatusEventFinal StatusEventType = "final"
)

// StatusEvent wraps a JudgeStatusResponse for publication onto the events
// topic so that non-judge consumers (notification, ranking) can react to a
// submission reaching a final state without polling the status repository.
type StatusEvent struct {
	Type      StatusEventType     `json:"type"`
	Status    JudgeStatusResponse `json:"status"`
	CreatedAt int64               `json:"created_at"`
}
