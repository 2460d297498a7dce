package models

// TestStage is the last completed step of a test run. Stages only move forward.
type TestStage int

const (
	StageInitiated TestStage = iota
	StageIssueRequested
	StagePaymentSent
	StageIssueConfirmed
	StageRedeemRequested
	StageRedeemConfirmed
)

var stageNames = map[TestStage]string{
	StageInitiated:       "test_initiated",
	StageIssueRequested:  "request_issue_completed",
	StagePaymentSent:     "stellar_payment_completed",
	StageIssueConfirmed:  "issue_completed",
	StageRedeemRequested: "request_redeem_completed",
	StageRedeemConfirmed: "redeem_completed",
}

var stageExplanations = map[TestStage]string{
	StageInitiated:       "Test initiated. Waiting for issue to be requested.",
	StageIssueRequested:  "Requesting issue completed. Waiting for execution of Stellar payment.",
	StagePaymentSent:     "Stellar payment completed. Waiting for issue to be completed by vault.",
	StageIssueConfirmed:  "Issue completed. Waiting for redeem to be requested.",
	StageRedeemRequested: "Requesting redeem completed. Waiting for redeem to be completed by vault.",
	StageRedeemConfirmed: "Redeem completed, test finished.",
}

func (s TestStage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Explanation returns the operator facing description of the stage
func (s TestStage) Explanation() string {
	return stageExplanations[s]
}

// Stages lists all stages in order
func Stages() []TestStage {
	return []TestStage{
		StageInitiated,
		StageIssueRequested,
		StagePaymentSent,
		StageIssueConfirmed,
		StageRedeemRequested,
		StageRedeemConfirmed,
	}
}
