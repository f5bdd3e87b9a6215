package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"
)

const (
	defaultWaitMs = 1000
	maxScrollPx   = 100000
	maxWaitMs     = 300000
)

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one != "" {
			*s = stringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

type rawWait struct {
	Type       string  `json:"type"`
	Selector   string  `json:"selector"`
	DurationMs float64 `json:"duration_ms"`
}

type rawParams struct {
	Text        string   `json:"text"`
	PressEnter  bool     `json:"press_enter"`
	Direction   string   `json:"direction"`
	Amount      float64  `json:"amount"`
	Wait        *rawWait `json:"wait"`
	URL         string   `json:"url"`
	ExtractType string   `json:"extract_type"`
	Key         string   `json:"key"`
	Selector    string   `json:"selector"`
}

type rawProposal struct {
	ActionType        string        `json:"action_type"`
	Action            string        `json:"action"`
	Targets           stringList    `json:"targets"`
	Target            stringList    `json:"target"`
	TargetDescription string        `json:"target_description"`
	Parameters        rawParams     `json:"parameters"`
	Confidence        *float64      `json:"confidence"`
	Reasoning         string        `json:"reasoning"`
	GoalSatisfied     bool          `json:"goal_satisfied"`
	Actions           []rawProposal `json:"actions"`
}

func parseErr(raw, reason string, err error) error {
	return &output.ProposalParseError{Raw: raw, Reason: reason, Err: err}
}

// ParseProposal turns a model reply into a validated proposal. Text around the
// JSON object is ignored; when the reply lists several actions only the first
// one is used.
func ParseProposal(response string) (entity.Proposal, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end <= start {
		return entity.Proposal{}, parseErr(response, "no JSON object in response", nil)
	}

	var raw rawProposal
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return entity.Proposal{}, parseErr(response, "invalid JSON", err)
	}
	if len(raw.Actions) > 0 {
		raw = raw.Actions[0]
	}

	p, err := raw.toProposal()
	if err != nil {
		return entity.Proposal{}, parseErr(response, "schema violation", err)
	}
	return p, nil
}

func (r rawProposal) toProposal() (entity.Proposal, error) {
	name := r.ActionType
	if name == "" {
		name = r.Action
	}
	kind, ok := entity.ParseActionKind(name)
	if !ok {
		return entity.Proposal{}, fmt.Errorf("unknown action_type %q", name)
	}

	if r.Confidence == nil {
		return entity.Proposal{}, errors.New("missing confidence")
	}
	conf := *r.Confidence
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return entity.Proposal{}, fmt.Errorf("confidence %v outside [0,1]", conf)
	}

	targets := make([]string, 0, len(r.Targets)+len(r.Target)+1)
	for _, t := range append(append([]string{}, r.Targets...), r.Target...) {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	if sel := strings.TrimSpace(r.Parameters.Selector); sel != "" {
		targets = append(targets, sel)
	}

	desc := strings.TrimSpace(r.TargetDescription)

	if a := r.Parameters.Amount; math.Abs(a) > maxScrollPx {
		return entity.Proposal{}, fmt.Errorf("scroll amount %v outside [-%d, %d]", a, maxScrollPx, maxScrollPx)
	}
	if w := r.Parameters.Wait; w != nil && math.Abs(w.DurationMs) > maxWaitMs {
		return entity.Proposal{}, fmt.Errorf("wait duration_ms %v outside [-%d, %d]", w.DurationMs, maxWaitMs, maxWaitMs)
	}

	params := entity.ActionParams{
		Text:       r.Parameters.Text,
		PressEnter: r.Parameters.PressEnter,
		Direction:  strings.ToLower(strings.TrimSpace(r.Parameters.Direction)),
		Amount:     int(r.Parameters.Amount),
		URL:        strings.TrimSpace(r.Parameters.URL),
		Key:        strings.TrimSpace(r.Parameters.Key),
	}

	if kind.NeedsTarget() && len(targets) == 0 && desc == "" {
		return entity.Proposal{}, fmt.Errorf("%s needs a target or target_description", kind)
	}

	switch kind {
	case entity.ActionScroll:
		switch params.Direction {
		case "":
			params.Direction = "down"
		case "down", "up", "top", "to_top", "bottom", "to_bottom":
		default:
			return entity.Proposal{}, fmt.Errorf("unknown scroll direction %q", params.Direction)
		}
		if params.Amount < 0 {
			return entity.Proposal{}, errors.New("scroll amount must not be negative")
		}
	case entity.ActionNavigate:
		if params.URL == "" {
			return entity.Proposal{}, errors.New("navigate needs parameters.url")
		}
	case entity.ActionWait:
		params.Wait = waitCondition(r.Parameters.Wait, targets)
		if params.Wait.Type == entity.WaitElement && params.Wait.Selector == "" {
			return entity.Proposal{}, errors.New("element wait needs a selector")
		}
		if params.Wait.Type == "" {
			return entity.Proposal{}, fmt.Errorf("unknown wait type %q", r.Parameters.Wait.Type)
		}
	case entity.ActionExtract:
		et := entity.ExtractType(strings.ToLower(strings.TrimSpace(r.Parameters.ExtractType)))
		switch et {
		case "":
			et = entity.ExtractText
		case entity.ExtractText, entity.ExtractHTML, entity.ExtractLinks, entity.ExtractScreenshot:
		case entity.ExtractElement:
			if len(targets) == 0 && desc == "" {
				return entity.Proposal{}, errors.New("element extraction needs a target")
			}
		default:
			return entity.Proposal{}, fmt.Errorf("unknown extract_type %q", et)
		}
		params.Extract = et
	}

	return entity.Proposal{
		Kind:              kind,
		Targets:           targets,
		TargetDescription: desc,
		Params:            params,
		Rationale:         strings.TrimSpace(r.Reasoning),
		Confidence:        conf,
		GoalSatisfied:     r.GoalSatisfied,
	}, nil
}

func waitCondition(w *rawWait, targets []string) entity.WaitCondition {
	if w == nil {
		return entity.WaitCondition{Type: entity.WaitTimeout, DurationMs: defaultWaitMs}
	}
	cond := entity.WaitCondition{Selector: strings.TrimSpace(w.Selector), DurationMs: int(w.DurationMs)}
	switch strings.ToLower(strings.TrimSpace(w.Type)) {
	case "", "timeout":
		cond.Type = entity.WaitTimeout
		if cond.DurationMs <= 0 {
			cond.DurationMs = defaultWaitMs
		}
	case "element", "selector":
		cond.Type = entity.WaitElement
		if cond.Selector == "" && len(targets) > 0 {
			cond.Selector = targets[0]
		}
	case "load_state", "load":
		cond.Type = entity.WaitLoadState
	}
	return cond
}
