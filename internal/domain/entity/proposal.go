package entity

import "strings"

type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionScroll   ActionKind = "scroll"
	ActionWait     ActionKind = "wait"
	ActionNavigate ActionKind = "navigate"
	ActionExtract  ActionKind = "extract"
)

func ParseActionKind(s string) (ActionKind, bool) {
	switch k := ActionKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ActionClick, ActionType, ActionScroll, ActionWait, ActionNavigate, ActionExtract:
		return k, true
	}
	return "", false
}

// NeedsTarget reports whether the kind can only run against a resolved element.
func (k ActionKind) NeedsTarget() bool {
	return k == ActionClick || k == ActionType
}

// Verifiable kinds get a post-condition check after dispatch.
func (k ActionKind) Verifiable() bool {
	return k == ActionClick || k == ActionNavigate
}

type WaitType string

const (
	WaitTimeout   WaitType = "timeout"
	WaitElement   WaitType = "element"
	WaitLoadState WaitType = "load_state"
)

type WaitCondition struct {
	Type       WaitType
	Selector   string
	DurationMs int
}

type ExtractType string

const (
	ExtractText       ExtractType = "text"
	ExtractHTML       ExtractType = "html"
	ExtractElement    ExtractType = "element"
	ExtractLinks      ExtractType = "links"
	ExtractScreenshot ExtractType = "screenshot"
)

type ActionParams struct {
	Text       string
	PressEnter bool
	Direction  string
	Amount     int
	Wait       WaitCondition
	URL        string
	Extract    ExtractType
	Key        string
}

// Proposal is the decision client's suggestion for the next tick.
type Proposal struct {
	Kind    ActionKind
	Targets []string
	// TargetDescription is the model's plain-language name for the element,
	// used to derive fallback selectors after Targets.
	TargetDescription string
	Params            ActionParams
	Rationale         string
	Confidence        float64
	GoalSatisfied     bool
}

func (p Proposal) PrimaryTarget() string {
	if len(p.Targets) == 0 {
		return p.TargetDescription
	}
	return p.Targets[0]
}

// HistoryEntry is the compact record kept for future prompts.
type HistoryEntry struct {
	Kind    ActionKind `json:"kind"`
	Target  string     `json:"target,omitempty"`
	Success bool       `json:"success"`
	Skipped bool       `json:"skipped,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}
