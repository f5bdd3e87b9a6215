package rod

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

type CleanConfig struct {
	TagsToRemove  []string
	AttrsToRemove []string
	MaxOutputSize int
}

var DefaultCleanConfig = CleanConfig{
	TagsToRemove: []string{
		"script", "style", "noscript", "svg", "iframe", "canvas", "template",
		"link", "meta", "head", "title",
	},
	AttrsToRemove: []string{
		"style", "srcset", "sizes", "loading", "decoding", "fetchpriority", "tabindex", "nonce",
	},
	MaxOutputSize: 130_000,
}

const truncationNotice = "\n<!-- HTML truncated -->"

// CleanHTMLForAgent reduces a page body to markup worth storing as extracted
// content: no scripts, styles, comments, event handlers or data attributes.
// Input that cannot be parsed is returned truncated but otherwise untouched.
func CleanHTMLForAgent(rawHTML string, cfg *CleanConfig) string {
	if cfg == nil {
		cfg = &DefaultCleanConfig
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return truncateHTML(rawHTML, cfg.MaxOutputSize)
	}

	root := findBodyNode(doc)
	if root == nil {
		root = doc
	}

	drop := toSet(cfg.TagsToRemove)
	dropAttrs := toSet(cfg.AttrsToRemove)
	cleanNode(root, drop, dropAttrs)

	var sb strings.Builder
	_ = html.Render(&sb, root)
	return truncateHTML(sb.String(), cfg.MaxOutputSize)
}

func findBodyNode(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBodyNode(c); b != nil {
			return b
		}
	}
	return nil
}

func cleanNode(n *html.Node, drop, dropAttrs map[string]bool) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && drop[c.Data]:
			n.RemoveChild(c)
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) == "":
			n.RemoveChild(c)
		case c.Type == html.ElementNode:
			c.Attr = filterAttributes(c.Attr, dropAttrs)
			cleanNode(c, drop, dropAttrs)
		}
		c = next
	}
}

func filterAttributes(attrs []html.Attribute, dropAttrs map[string]bool) []html.Attribute {
	kept := attrs[:0]
	for _, attr := range attrs {
		key := attr.Key
		if dropAttrs[key] ||
			strings.HasPrefix(key, "data-") ||
			strings.HasPrefix(key, "aria-") ||
			strings.HasPrefix(key, "on") {
			continue
		}
		kept = append(kept, attr)
	}
	return kept
}

// truncateHTML cuts at maxSize bytes without splitting a UTF-8 sequence.
func truncateHTML(s string, maxSize int) string {
	if maxSize <= 0 || len(s) <= maxSize {
		return s
	}
	cut := maxSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationNotice
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
