package prompts

import (
	"bytes"
	"fmt"
	"text/template"

	"layout-agent/internal/domain/entity"
)

var contextTmpl = template.Must(template.New("context").Parse(contextTemplate))

type ElementView struct {
	ID           string
	Role         string
	Name         string
	HasBox       bool
	Interactable bool
}

type ContextData struct {
	URL            string
	Title          string
	Goal           string
	Degraded       bool
	DegradedReason string
	Elements       []ElementView
	History        []entity.HistoryEntry
}

// NewContextData lays out a snapshot in capture order.
func NewContextData(snap entity.Snapshot, goal string, history []entity.HistoryEntry) ContextData {
	views := make([]ElementView, 0, len(snap.Order))
	for _, id := range snap.Order {
		el, ok := snap.Elements[id]
		if !ok {
			continue
		}
		views = append(views, ElementView{
			ID:           id,
			Role:         el.Role,
			Name:         el.Name,
			HasBox:       el.HasBox,
			Interactable: el.Interactable,
		})
	}
	return ContextData{
		URL:            snap.URL,
		Title:          snap.Title,
		Goal:           goal,
		Degraded:       snap.Degraded,
		DegradedReason: snap.Reason,
		Elements:       views,
		History:        history,
	}
}

func GenerateContext(data ContextData) (string, error) {
	var buf bytes.Buffer
	if err := contextTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render context: %w", err)
	}
	return buf.String(), nil
}
