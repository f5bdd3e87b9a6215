package entity

import "time"

type FailureReason string

const (
	ReasonNone           FailureReason = ""
	ReasonTargetNotFound FailureReason = "target_not_found"
	ReasonActionTimeout  FailureReason = "action_timeout"
	ReasonUnverified     FailureReason = "unverified"
	ReasonInvalidAction  FailureReason = "invalid_action"
	ReasonDispatchFailed FailureReason = "dispatch_failed"
	ReasonLowConfidence  FailureReason = "low_confidence"
	ReasonProposalParse  FailureReason = "proposal_parse_error"
)

// Retryable reports whether the executor may retry an action once.
func (r FailureReason) Retryable() bool {
	return r == ReasonActionTimeout
}

// Outcome is one entry of the session action log. Skipped entries were never
// handed to the executor.
type Outcome struct {
	Tick         int
	Action       Proposal
	SelectorUsed string
	Success      bool
	Skipped      bool
	Reason       FailureReason
	Detail       string
	Attempts     int
	Elapsed      time.Duration
	Extracted    map[string]string
}

func (o Outcome) History() HistoryEntry {
	target := o.SelectorUsed
	if target == "" {
		target = o.Action.PrimaryTarget()
	}
	return HistoryEntry{
		Kind:    o.Action.Kind,
		Target:  target,
		Success: o.Success,
		Skipped: o.Skipped,
		Reason:  string(o.Reason),
	}
}
