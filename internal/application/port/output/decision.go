package output

import (
	"context"
	"errors"
	"fmt"

	"layout-agent/internal/domain/entity"
)

// ErrDecisionUnavailable is returned once retries against the reasoning
// service are exhausted. It is fatal for the run.
var ErrDecisionUnavailable = errors.New("decision service unavailable")

// ProposalParseError reports a model response that could not be turned into a
// valid proposal.
type ProposalParseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ProposalParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse proposal: %s: %v", e.Reason, e.Err)
	}
	return "parse proposal: " + e.Reason
}

func (e *ProposalParseError) Unwrap() error { return e.Err }

type DecisionPort interface {
	Propose(ctx context.Context, snap entity.Snapshot, goal string, history []entity.HistoryEntry) (entity.Proposal, error)
}
