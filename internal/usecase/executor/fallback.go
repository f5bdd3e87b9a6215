package executor

import (
	"fmt"
	"strings"

	"layout-agent/internal/domain/entity"
)

// fillerWords are dropped from a target description before it is matched
// against element text.
var fillerWords = map[string]bool{
	"the": true, "a": true, "an": true,
	"tab": true, "button": true, "link": true, "icon": true,
	"field": true, "input": true, "box": true,
}

// fallbackSelectors derives XPath candidates from the model's plain-language
// description of the target. They are tried after the model's own selectors.
func fallbackSelectors(kind entity.ActionKind, desc string) []string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return nil
	}
	lower := strings.ToLower(desc)
	label := descriptionLabel(desc)
	lit := xpathLiteral(label)

	var sels []string
	switch kind {
	case entity.ActionType:
		sels = append(sels,
			fmt.Sprintf("//input[contains(@placeholder, %s)]", lit),
			fmt.Sprintf("//textarea[contains(@placeholder, %s)]", lit),
			fmt.Sprintf("//input[contains(@name, %s)]", xpathLiteral(strings.ToLower(label))),
			fmt.Sprintf("//*[self::input or self::textarea][contains(@aria-label, %s)]", lit),
		)
	case entity.ActionClick:
		text := fmt.Sprintf("[contains(normalize-space(.), %s)]", lit)
		if strings.Contains(lower, "tab") {
			sels = append(sels, "//*[@role='tab']"+text)
		}
		if strings.Contains(lower, "button") || strings.Contains(lower, "click") {
			sels = append(sels, "//*[self::button or @role='button']"+text)
		}
		if strings.Contains(lower, "link") {
			sels = append(sels, "//a"+text)
		}
		sels = append(sels,
			"//*[self::a or self::button or @role='button' or @role='tab' or @role='link']"+text,
			fmt.Sprintf("//*[contains(@aria-label, %s)]", lit),
			fmt.Sprintf("//*[contains(@title, %s)]", lit),
			fmt.Sprintf("//*[contains(@alt, %s)]", lit),
		)
	default:
		sels = append(sels,
			fmt.Sprintf("//*[contains(@aria-label, %s)]", lit),
			fmt.Sprintf("//*[not(*)][contains(normalize-space(.), %s)]", lit),
		)
	}
	return sels
}

// descriptionLabel strips filler words from desc, falling back to desc when
// nothing else is left.
func descriptionLabel(desc string) string {
	var kept []string
	for _, w := range strings.Fields(desc) {
		if !fillerWords[strings.ToLower(w)] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return desc
	}
	return strings.Join(kept, " ")
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so a value holding both quote kinds becomes a concat() call.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	args := make([]string, 0, 2*len(parts))
	for i, part := range parts {
		if i > 0 {
			args = append(args, `"'"`)
		}
		if part != "" {
			args = append(args, "'"+part+"'")
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}
