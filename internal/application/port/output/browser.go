package output

import (
	"context"
	"errors"

	"layout-agent/internal/domain/entity"
)

var (
	// ErrSessionInvalid means the page handle is gone and no further primitive
	// can succeed on it.
	ErrSessionInvalid = errors.New("browser session invalidated")
	ErrNoMatch        = errors.New("selector matched no element")
)

// BrowserPort hands out isolated browser contexts.
type BrowserPort interface {
	NewContext(ctx context.Context) (PageSession, error)
	Close() error
}

// PageSession is a single page inside an isolated browser context. Every
// blocking primitive honours ctx.
type PageSession interface {
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string, pressEnter bool) error
	Scroll(ctx context.Context, direction string, amount int) error
	WaitFor(ctx context.Context, cond entity.WaitCondition) error

	AccessibilityTree(ctx context.Context) (*entity.AXTree, error)
	Match(ctx context.Context, selector string) (entity.Match, error)
	Fingerprint(ctx context.Context) (entity.Fingerprint, error)
	ReadContent(ctx context.Context, kind entity.ExtractType, selector string) (string, error)
	Links(ctx context.Context) ([]entity.Link, error)
	Screenshot(ctx context.Context) (*entity.Screenshot, error)

	URL() string
	Title(ctx context.Context) string
	Close() error
}
