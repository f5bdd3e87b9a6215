package rod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"
	"sync"
	"time"

	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

var _ output.PageSession = (*Page)(nil)

const maxScreenshotWidth = 1024

// Page is one page inside its own incognito browser context.
type Page struct {
	page      *rod.Page
	incognito *rod.Browser
	timeout   time.Duration

	mu     sync.Mutex
	closed bool
}

func newPage(page *rod.Page, incognito *rod.Browser, timeout time.Duration) *Page {
	return &Page{page: page, incognito: incognito, timeout: timeout}
}

// bounded caps ctx with the page's default timeout for primitives that are
// called outside the executor's per-action deadline.
func (p *Page) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Page) Goto(ctx context.Context, url string) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return classify(fmt.Errorf("navigation failed: %w", err))
	}
	if err := pg.WaitLoad(); err != nil {
		return classify(fmt.Errorf("wait load: %w", err))
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	el, err := p.single(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return classify(fmt.Errorf("scroll into view: %w", err))
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify(fmt.Errorf("click failed: %w", err))
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, text string, pressEnter bool) error {
	el, err := p.single(ctx, selector)
	if err != nil {
		return err
	}

	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return classify(fmt.Errorf("input failed: %w", err))
	}
	if pressEnter {
		if err := el.Type(input.Enter); err != nil {
			return classify(fmt.Errorf("press enter: %w", err))
		}
	}
	return nil
}

func (p *Page) Scroll(ctx context.Context, direction string, amount int) error {
	dir, ok := normalizeDirection(direction)
	if !ok {
		return fmt.Errorf("unknown scroll direction: %s", direction)
	}
	if _, err := p.page.Context(ctx).Eval(scrollScript, dir, amount); err != nil {
		return classify(fmt.Errorf("scroll failed: %w", err))
	}
	return nil
}

func (p *Page) WaitFor(ctx context.Context, cond entity.WaitCondition) error {
	switch cond.Type {
	case entity.WaitTimeout:
		timer := time.NewTimer(time.Duration(cond.DurationMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	case entity.WaitElement:
		pg := p.page.Context(ctx)
		var err error
		if isXPath(cond.Selector) {
			_, err = pg.ElementX(cond.Selector)
		} else {
			_, err = pg.Element(cond.Selector)
		}
		if err != nil {
			return classify(fmt.Errorf("wait for %s: %w", cond.Selector, err))
		}
		return nil
	case entity.WaitLoadState:
		if err := p.page.Context(ctx).WaitLoad(); err != nil {
			return classify(fmt.Errorf("wait load: %w", err))
		}
		return nil
	}
	return fmt.Errorf("unknown wait type: %q", cond.Type)
}

type axTreeResult struct {
	URL     string          `json:"url"`
	Title   string          `json:"title"`
	Partial bool            `json:"partial"`
	Nodes   []entity.AXNode `json:"nodes"`
}

// AccessibilityTree walks the document in a single evaluation. When that
// evaluation fails it falls back to per-element queries and marks the tree
// partial.
func (p *Page) AccessibilityTree(ctx context.Context) (*entity.AXTree, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	res, err := p.page.Context(ctx).Eval(axTreeScript)
	if err == nil {
		var tree axTreeResult
		if err = res.Value.Unmarshal(&tree); err == nil {
			return &entity.AXTree{URL: tree.URL, Title: tree.Title, Nodes: tree.Nodes, Partial: tree.Partial}, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	nodes, ferr := collectElements(ctx, p.page, defaultExtractConfig)
	if ferr != nil {
		return nil, classify(fmt.Errorf("accessibility traversal: %w", errors.Join(err, ferr)))
	}
	return &entity.AXTree{URL: p.URL(), Title: p.Title(ctx), Nodes: nodes, Partial: true}, nil
}

func (p *Page) Match(ctx context.Context, selector string) (entity.Match, error) {
	els, err := p.elements(ctx, selector)
	if err != nil {
		return entity.Match{}, err
	}
	m := entity.Match{Count: len(els)}
	if len(els) == 1 {
		res, err := els[0].Eval(interactableScript)
		if err != nil {
			return m, classify(fmt.Errorf("interactable check: %w", err))
		}
		m.Interactable = res.Value.Bool()
	}
	return m, nil
}

type fingerprintResult struct {
	URL      string `json:"url"`
	Count    int    `json:"count"`
	Text     int    `json:"text"`
	Complete bool   `json:"complete"`
}

func (p *Page) Fingerprint(ctx context.Context) (entity.Fingerprint, error) {
	res, err := p.page.Context(ctx).Eval(fingerprintScript)
	if err != nil {
		return entity.Fingerprint{}, classify(fmt.Errorf("fingerprint: %w", err))
	}
	var fp fingerprintResult
	if err := res.Value.Unmarshal(&fp); err != nil {
		return entity.Fingerprint{}, fmt.Errorf("decode fingerprint: %w", err)
	}
	return entity.Fingerprint{
		URL:          fp.URL,
		ElementCount: fp.Count,
		TextLength:   fp.Text,
		LoadComplete: fp.Complete,
	}, nil
}

func (p *Page) ReadContent(ctx context.Context, kind entity.ExtractType, selector string) (string, error) {
	pg := p.page.Context(ctx)
	switch kind {
	case entity.ExtractText, "":
		res, err := pg.Eval(bodyTextScript)
		if err != nil {
			return "", classify(fmt.Errorf("read text: %w", err))
		}
		return strings.TrimSpace(res.Value.Str()), nil
	case entity.ExtractHTML:
		body, err := pg.Element("body")
		if err != nil {
			return "", classify(fmt.Errorf("body not found: %w", err))
		}
		raw, err := body.HTML()
		if err != nil {
			return "", classify(fmt.Errorf("failed to get HTML: %w", err))
		}
		return CleanHTMLForAgent(raw, nil), nil
	case entity.ExtractElement:
		el, err := p.single(ctx, selector)
		if err != nil {
			return "", err
		}
		text, err := el.Text()
		if err != nil {
			return "", classify(fmt.Errorf("read element: %w", err))
		}
		return strings.TrimSpace(text), nil
	}
	return "", fmt.Errorf("unsupported content kind: %q", kind)
}

func (p *Page) Links(ctx context.Context) ([]entity.Link, error) {
	res, err := p.page.Context(ctx).Eval(linksScript)
	if err != nil {
		return nil, classify(fmt.Errorf("collect links: %w", err))
	}
	var links []entity.Link
	if err := res.Value.Unmarshal(&links); err != nil {
		return nil, fmt.Errorf("decode links: %w", err)
	}
	return links, nil
}

func (p *Page) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	imgBytes, err := p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("screenshot failed: %w", err))
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	if img.Bounds().Dx() > maxScreenshotWidth {
		img = imaging.Resize(img, maxScreenshotWidth, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return &entity.Screenshot{
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *Page) Title(ctx context.Context) string {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.Title
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.page.Close()
	if cerr := p.incognito.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// elements lists current matches without waiting for them to appear.
func (p *Page) elements(ctx context.Context, selector string) (rod.Elements, error) {
	pg := p.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if isXPath(selector) {
		els, err = pg.ElementsX(selector)
	} else {
		els, err = pg.Elements(selector)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("query %s: %w", selector, err))
	}
	return els, nil
}

func (p *Page) single(ctx context.Context, selector string) (*rod.Element, error) {
	els, err := p.elements(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%s: %w", selector, output.ErrNoMatch)
	}
	return els[0].Context(ctx), nil
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(/")
}

func normalizeDirection(direction string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "down", "":
		return "down", true
	case "up":
		return "up", true
	case "top", "to_top":
		return "top", true
	case "bottom", "to_bottom":
		return "bottom", true
	}
	return "", false
}

var goneMarkers = []string{
	"Target closed",
	"No target with given id",
	"Session with given id not found",
	"websocket: close",
	"use of closed network connection",
}

// classify marks errors that mean the page or browser is gone.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	for _, m := range goneMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", output.ErrSessionInvalid, err)
		}
	}
	return err
}
