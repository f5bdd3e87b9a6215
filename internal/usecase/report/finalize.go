package report

import (
	"fmt"
	"maps"
	"slices"

	"layout-agent/internal/domain/entity"
)

// Finalize summarises a sealed session. It reads the session only and returns
// an equal Report on every call.
func Finalize(s *entity.Session) (*entity.Report, error) {
	if !s.Sealed() {
		return nil, fmt.Errorf("finalize run %s in state %s: %w", s.RunID, s.State(), entity.ErrNotTerminal)
	}

	actions := s.Actions()
	executed, skipped := 0, 0
	for _, a := range actions {
		if a.Skipped {
			skipped++
		} else {
			executed++
		}
	}

	extracted := s.Extracted()
	errs := s.Errors()

	r := &entity.Report{
		RunID:             s.RunID,
		Goal:              s.Goal,
		FinalURL:          s.FinalURL(),
		TotalActions:      len(actions),
		Executed:          executed,
		Skipped:           skipped,
		ErrorCount:        len(errs),
		ExtractedKeys:     slices.Sorted(maps.Keys(extracted)),
		TerminationReason: s.State(),
		NavigationPath:    s.Path(),
		DurationMs:        s.EndedAt.Sub(s.StartedAt).Milliseconds(),
	}
	if r.ExtractedKeys == nil {
		r.ExtractedKeys = []string{}
	}
	if len(extracted) > 0 {
		r.Extracted = extracted
	}
	for _, st := range s.Strategies() {
		r.SelectorStrategies = append(r.SelectorStrategies, entity.StrategyReport{
			Kind:     st.Kind,
			Selector: st.Selector,
			Rank:     st.Rank,
		})
	}
	if s.State() == entity.StateFailed && len(errs) > 0 {
		last := errs[len(errs)-1]
		r.Error = fmt.Sprintf("%s: %s", last.Kind, last.Message)
	}
	return r, nil
}
