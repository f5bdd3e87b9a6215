package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"layout-agent/internal/application/port/output"

	"golang.org/x/sync/semaphore"
)

var ErrPoolClosed = errors.New("context pool closed")

// Pool bounds the number of live browser contexts. Callers that find it full
// block until a slot frees or their context ends.
type Pool struct {
	browser output.BrowserPort
	sem     *semaphore.Weighted
	size    int64
	logger  output.LoggerPort

	inUse  atomic.Int64
	mu     sync.RWMutex
	closed bool
}

func New(browser output.BrowserPort, size int, logger output.LoggerPort) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		browser: browser,
		sem:     semaphore.NewWeighted(int64(size)),
		size:    int64(size),
		logger:  logger,
	}
}

// WithPage acquires a slot, opens a fresh isolated context and hands its page
// to fn. The page is closed and the slot released on every exit path.
func (p *Pool) WithPage(ctx context.Context, fn func(ctx context.Context, page output.PageSession) error) error {
	if p.isClosed() {
		return ErrPoolClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire browser context: %w", err)
	}
	defer p.sem.Release(1)

	if p.isClosed() {
		return ErrPoolClosed
	}

	page, err := p.browser.NewContext(ctx)
	if err != nil {
		return fmt.Errorf("open browser context: %w", err)
	}
	n := p.inUse.Add(1)
	p.logger.Debug("Browser context acquired", "in_use", n, "size", p.size)

	defer func() {
		if err := page.Close(); err != nil {
			p.logger.Warn("Failed to close browser context", "error", err)
		}
		n := p.inUse.Add(-1)
		p.logger.Debug("Browser context released", "in_use", n)
	}()

	return fn(ctx, page)
}

func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

func (p *Pool) Size() int {
	return int(p.size)
}

// Close waits for every outstanding context to be released and then closes
// the browser.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, p.size); err != nil {
		return fmt.Errorf("drain context pool: %w", err)
	}
	defer p.sem.Release(p.size)
	return p.browser.Close()
}

func (p *Pool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
