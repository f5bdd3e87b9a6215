package rod

import (
	"context"
	"errors"
	"strings"

	"layout-agent/internal/domain/entity"

	"github.com/go-rod/rod"
)

type extractConfig struct {
	MaxElements int
}

var defaultExtractConfig = extractConfig{MaxElements: 500}

// elementGroups is queried in order. Roles are the ones reported to the model.
var elementGroups = []struct {
	selector string
	role     string
}{
	{"button, [role='button'], input[type='submit']", "button"},
	{"input:not([type='hidden']):not([type='submit']), textarea, [role='textbox']", "textbox"},
	{"select, [role='combobox']", "combobox"},
	{"input[type='checkbox'], [role='checkbox']", "checkbox"},
	{"a[href]", "link"},
	{"h1, h2, h3", "heading"},
}

// collectElements is the slow path used when the one-shot traversal script
// cannot run. Each element is checked separately so one failure does not
// lose the rest.
func collectElements(ctx context.Context, page *rod.Page, cfg extractConfig) ([]entity.AXNode, error) {
	pg := page.Context(ctx)
	seen := make(map[string]bool)
	var (
		nodes   []entity.AXNode
		lastErr error
		queried bool
	)

	add := func(el *rod.Element, role string) {
		if len(nodes) >= cfg.MaxElements {
			return
		}

		res, err := el.Eval(elementSelectorScript)
		if err != nil {
			lastErr = err
			return
		}
		selector := res.Value.Str()
		if selector == "" || seen[selector] {
			return
		}
		seen[selector] = true

		visible, _ := el.Visible()
		text, _ := el.Text()
		aria, _ := el.Attribute("aria-label")
		placeholder, _ := el.Attribute("placeholder")
		title, _ := el.Attribute("title")

		interactable := false
		if role != "heading" && visible {
			if ir, err := el.Eval(interactableScript); err == nil {
				interactable = ir.Value.Bool()
			}
		}

		nodes = append(nodes, entity.AXNode{
			Role:         role,
			Name:         firstNonEmpty(ptrToString(aria), ptrToString(title), ptrToString(placeholder), text),
			HasBox:       visible,
			Interactable: interactable,
			Selector:     selector,
		})
	}

	for _, g := range elementGroups {
		els, err := pg.Elements(g.selector)
		if err != nil {
			lastErr = err
			continue
		}
		queried = true
		for _, el := range els {
			add(el, g.role)
		}
	}

	if !queried {
		if lastErr == nil {
			lastErr = errors.New("no element group could be queried")
		}
		return nil, lastErr
	}
	return nodes, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.Join(strings.Fields(v), " "); trimmed != "" {
			if len(trimmed) > 120 {
				trimmed = trimmed[:120]
			}
			return trimmed
		}
	}
	return ""
}

func ptrToString(s *string) string {
	if s != nil {
		return *s
	}
	return ""
}
