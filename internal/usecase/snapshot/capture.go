package snapshot

import (
	"context"

	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"
)

const DefaultMaxElements = 150

type Capturer struct {
	maxElements int
	logger      output.LoggerPort
}

func New(maxElements int, logger output.LoggerPort) *Capturer {
	if maxElements <= 0 {
		maxElements = DefaultMaxElements
	}
	return &Capturer{maxElements: maxElements, logger: logger}
}

// Capture summarizes the page without changing it. A failed traversal yields a
// degraded snapshot, never an error.
func (c *Capturer) Capture(ctx context.Context, page output.PageSession) entity.Snapshot {
	tree, err := page.AccessibilityTree(ctx)
	if err != nil {
		c.logger.Warn("Snapshot degraded", "error", err)
		return entity.Snapshot{
			URL:      page.URL(),
			Title:    page.Title(ctx),
			Elements: map[string]entity.ElementInfo{},
			Degraded: true,
			Reason:   err.Error(),
		}
	}

	snap := Build(tree, c.maxElements)
	if snap.URL == "" {
		snap.URL = page.URL()
	}
	if snap.Degraded {
		c.logger.Warn("Snapshot degraded", "reason", snap.Reason, "elements", len(snap.Order))
	} else {
		c.logger.Debug("Snapshot captured", "elements", len(snap.Order), "total", len(tree.Nodes))
	}
	return snap
}

// Build keeps at most max nodes, interactable ones first, and numbers the kept
// nodes e1..eN in document order.
func Build(tree *entity.AXTree, max int) entity.Snapshot {
	keep := make([]bool, len(tree.Nodes))
	n := 0
	for pass := 0; pass < 2 && n < max; pass++ {
		wantInteractable := pass == 0
		for i, node := range tree.Nodes {
			if n >= max {
				break
			}
			if keep[i] || node.Selector == "" || node.Interactable != wantInteractable {
				continue
			}
			keep[i] = true
			n++
		}
	}

	snap := entity.Snapshot{
		URL:      tree.URL,
		Title:    tree.Title,
		Elements: make(map[string]entity.ElementInfo, n),
		Order:    make([]string, 0, n),
	}
	for i, node := range tree.Nodes {
		if !keep[i] {
			continue
		}
		id := entity.ElementID(len(snap.Order) + 1)
		snap.Elements[id] = entity.NewElementInfo(node)
		snap.Order = append(snap.Order, id)
	}
	if tree.Partial {
		snap.Degraded = true
		snap.Reason = "some frames could not be traversed"
	}
	return snap
}
