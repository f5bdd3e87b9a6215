package entity

import "fmt"

// AXNode is one element reported by the page's accessibility traversal.
type AXNode struct {
	Role         string `json:"role"`
	Name         string `json:"name"`
	HasBox       bool   `json:"has_box"`
	Interactable bool   `json:"interactable"`
	Selector     string `json:"selector"`
}

// AXTree is the raw traversal result. Partial is set when some frames could not
// be walked.
type AXTree struct {
	URL     string
	Title   string
	Nodes   []AXNode
	Partial bool
}

// ElementInfo is the model-facing view of one page element.
type ElementInfo struct {
	Role         string `json:"role"`
	Name         string `json:"name"`
	HasBox       bool   `json:"has_box"`
	Interactable bool   `json:"interactable"`

	selector string
}

func NewElementInfo(node AXNode) ElementInfo {
	return ElementInfo{
		Role:         node.Role,
		Name:         node.Name,
		HasBox:       node.HasBox,
		Interactable: node.Interactable,
		selector:     node.Selector,
	}
}

func (e ElementInfo) Selector() string {
	return e.selector
}

// Snapshot is captured once per tick and never mutated afterwards.
type Snapshot struct {
	URL      string
	Title    string
	Elements map[string]ElementInfo
	Order    []string
	Degraded bool
	Reason   string
}

func ElementID(n int) string {
	return fmt.Sprintf("e%d", n)
}

// ResolveTargets maps snapshot element ids in candidates to their selectors.
// Anything that is not a known id is passed through as a raw selector.
func (s Snapshot) ResolveTargets(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		sel := c
		if el, ok := s.Elements[c]; ok && el.selector != "" {
			sel = el.selector
		}
		if sel == "" || seen[sel] {
			continue
		}
		seen[sel] = true
		out = append(out, sel)
	}
	return out
}

// Fingerprint is a cheap observation of page state used to verify that an
// action changed something.
type Fingerprint struct {
	URL          string
	ElementCount int
	TextLength   int
	LoadComplete bool
}

func (f Fingerprint) Changed(other Fingerprint) bool {
	return f.URL != other.URL || f.ElementCount != other.ElementCount || f.TextLength != other.TextLength
}

// Match describes what a selector resolved to on the live page.
type Match struct {
	Count        int
	Interactable bool
}

type Screenshot struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}
