// Package testutil holds hand-written fakes of the output ports shared by the
// usecase tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"
)

var (
	_ output.PageSession = (*FakePage)(nil)
	_ output.BrowserPort = (*FakeBrowser)(nil)
	_ output.LLMPort     = (*FakeLLM)(nil)
	_ output.LoggerPort  = NopLogger{}
)

// FakePage is a scriptable page. Error queues are consumed one per call; an
// empty queue means success.
type FakePage struct {
	mu sync.Mutex

	CurrentURL string
	PageTitle  string
	Tree       *entity.AXTree
	TreeErr    error
	Matches    map[string]entity.Match
	MatchErrs  map[string][]error
	ActionErrs map[string][]error
	GotoErr    error
	Content    map[entity.ExtractType]string
	LinkList   []entity.Link
	Shot       *entity.Screenshot

	// FingerprintErrs fail Fingerprint calls in order.
	FingerprintErrs []error

	// ChangeOnAction makes every successful click, fill or navigation change
	// the fingerprint.
	ChangeOnAction bool
	// BlockActions makes click and fill wait until ctx is done.
	BlockActions bool

	fp     entity.Fingerprint
	calls  []string
	closed bool
}

func NewFakePage(url string) *FakePage {
	return &FakePage{
		CurrentURL: url,
		PageTitle:  "Fake",
		Matches:    map[string]entity.Match{},
		MatchErrs:  map[string][]error{},
		ActionErrs: map[string][]error{},
		Content:    map[entity.ExtractType]string{},
		fp:         entity.Fingerprint{URL: url, ElementCount: 10, TextLength: 100, LoadComplete: true},
	}
}

func (p *FakePage) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePage) popErr(queue map[string][]error, key string) error {
	errs := queue[key]
	if len(errs) == 0 {
		return nil
	}
	queue[key] = errs[1:]
	return errs[0]
}

func (p *FakePage) changed() {
	if p.ChangeOnAction {
		p.fp.ElementCount++
	}
}

func (p *FakePage) act(ctx context.Context, name, selector string) error {
	p.mu.Lock()
	p.record("%s %s", name, selector)
	block := p.BlockActions
	err := p.popErr(p.ActionErrs, selector)
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.changed()
	p.mu.Unlock()
	return nil
}

func (p *FakePage) Goto(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("goto %s", url)
	if p.GotoErr != nil {
		return p.GotoErr
	}
	p.CurrentURL = url
	p.fp.URL = url
	return nil
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	return p.act(ctx, "click", selector)
}

func (p *FakePage) Fill(ctx context.Context, selector, text string, pressEnter bool) error {
	return p.act(ctx, "fill", selector)
}

func (p *FakePage) Scroll(ctx context.Context, direction string, amount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("scroll %s %d", direction, amount)
	return nil
}

func (p *FakePage) WaitFor(ctx context.Context, cond entity.WaitCondition) error {
	p.mu.Lock()
	p.record("wait %s", cond.Type)
	p.mu.Unlock()
	return ctx.Err()
}

func (p *FakePage) AccessibilityTree(ctx context.Context) (*entity.AXTree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("tree")
	if p.TreeErr != nil {
		return nil, p.TreeErr
	}
	if p.Tree == nil {
		return &entity.AXTree{URL: p.CurrentURL, Title: p.PageTitle}, nil
	}
	tree := *p.Tree
	return &tree, nil
}

func (p *FakePage) Match(ctx context.Context, selector string) (entity.Match, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("match %s", selector)
	if err := p.popErr(p.MatchErrs, selector); err != nil {
		return entity.Match{}, err
	}
	return p.Matches[selector], nil
}

func (p *FakePage) Fingerprint(ctx context.Context) (entity.Fingerprint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.FingerprintErrs) > 0 {
		err := p.FingerprintErrs[0]
		p.FingerprintErrs = p.FingerprintErrs[1:]
		if err != nil {
			return entity.Fingerprint{}, err
		}
	}
	return p.fp, nil
}

func (p *FakePage) ReadContent(ctx context.Context, kind entity.ExtractType, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("read %s %s", kind, selector)
	return p.Content[kind], nil
}

func (p *FakePage) Links(ctx context.Context) ([]entity.Link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.LinkList, nil
}

func (p *FakePage) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Shot == nil {
		return &entity.Screenshot{Data: []byte{0xff, 0xd8, 0xff}, Format: "jpeg", Width: 1, Height: 1}, nil
	}
	return p.Shot, nil
}

func (p *FakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL
}

func (p *FakePage) Title(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PageTitle
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// FakeBrowser hands out pages built by NewPage.
type FakeBrowser struct {
	NewPage    func() *FakePage
	ContextErr error

	opened atomic.Int32
	mu     sync.Mutex
	pages  []*FakePage
}

func (b *FakeBrowser) NewContext(ctx context.Context) (output.PageSession, error) {
	if b.ContextErr != nil {
		return nil, b.ContextErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page := NewFakePage("about:blank")
	if b.NewPage != nil {
		page = b.NewPage()
	}
	b.opened.Add(1)
	b.mu.Lock()
	b.pages = append(b.pages, page)
	b.mu.Unlock()
	return page, nil
}

func (b *FakeBrowser) Opened() int { return int(b.opened.Load()) }

func (b *FakeBrowser) Pages() []*FakePage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakePage(nil), b.pages...)
}

func (b *FakeBrowser) Close() error { return nil }

// FakeLLM answers with Replies in order, repeating the last one.
type FakeLLM struct {
	mu       sync.Mutex
	Replies  []string
	Errs     []error
	Requests []output.ChatRequest
}

func (f *FakeLLM) Chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.Errs) > 0 {
		err := f.Errs[0]
		f.Errs = f.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.Replies) == 0 {
		return nil, fmt.Errorf("no scripted reply")
	}
	reply := f.Replies[0]
	if len(f.Replies) > 1 {
		f.Replies = f.Replies[1:]
	}
	return &output.ChatResponse{Message: entity.Message{Role: entity.RoleAssistant, Content: reply}}, nil
}

func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

type NopLogger struct{}

func (NopLogger) Debug(string, ...any)                         {}
func (NopLogger) Info(string, ...any)                          {}
func (NopLogger) Warn(string, ...any)                          {}
func (NopLogger) Error(string, ...any)                         {}
func (l NopLogger) WithField(string, any) output.LoggerPort    { return l }
func (l NopLogger) WithFields(map[string]any) output.LoggerPort { return l }
func (NopLogger) Close() error                                 { return nil }
