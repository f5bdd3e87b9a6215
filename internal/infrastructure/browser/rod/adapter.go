package rod

import (
	"context"
	"fmt"
	"sync"
	"time"

	"layout-agent/internal/application/port/output"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var _ output.BrowserPort = (*BrowserAdapter)(nil)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// extraHeaders are sent with every request of a context, as name/value pairs.
var extraHeaders = []string{
	"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language", "en-US,en;q=0.5",
	"Upgrade-Insecure-Requests", "1",
	"Cache-Control", "max-age=0",
}

// BrowserAdapter owns one Chrome process and hands out incognito contexts, one
// page each.
type BrowserAdapter struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      BrowserConfig
	logger   output.LoggerPort

	mu     sync.Mutex
	closed bool
}

type BrowserConfig struct {
	Headless       bool
	NoSandbox      bool
	SlowMotion     time.Duration
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	Stealth        bool
}

func DefaultConfig() BrowserConfig {
	return BrowserConfig{
		Headless:       true,
		NoSandbox:      true,
		Timeout:        defaultTimeout,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		UserAgent:      defaultUserAgent,
		Stealth:        true,
	}
}

func NewBrowserAdapter(ctx context.Context, cfg BrowserConfig, logger output.LoggerPort) (*BrowserAdapter, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if cfg.SlowMotion > 0 {
		browser = browser.SlowMotion(cfg.SlowMotion)
	}
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logger.Info("Browser launched", "headless", cfg.Headless, "viewport", fmt.Sprintf("%dx%d", cfg.ViewportWidth, cfg.ViewportHeight))

	return &BrowserAdapter{
		browser:  browser,
		launcher: l,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// NewContext opens an isolated incognito context with a single blank page
// configured with viewport, user agent, headers and the stealth script.
func (b *BrowserAdapter) NewContext(ctx context.Context) (output.PageSession, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("new context: %w", output.ErrSessionInvalid)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The context handle outlives ctx so that Close still works after a
	// cancelled run.
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := b.configure(page); err != nil {
		_ = page.Close()
		_ = incognito.Close()
		return nil, err
	}

	return newPage(page, incognito, b.cfg.Timeout), nil
}

func (b *BrowserAdapter) configure(page *rod.Page) error {
	if b.cfg.ViewportWidth > 0 && b.cfg.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             b.cfg.ViewportWidth,
			Height:            b.cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		}).Call(page); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}

	if _, err := page.SetExtraHeaders(extraHeaders); err != nil {
		return fmt.Errorf("set headers: %w", err)
	}

	if b.cfg.Stealth {
		if _, err := page.EvalOnNewDocument("(" + stealthScript + ")()"); err != nil {
			return fmt.Errorf("inject stealth script: %w", err)
		}
	}
	return nil
}

func (b *BrowserAdapter) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	b.logger.Info("Browser closed")
	return err
}
