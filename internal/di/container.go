package di

import (
	"context"
	"fmt"

	"layout-agent/internal/application/port/input"
	"layout-agent/internal/application/port/output"
	"layout-agent/internal/config"
	"layout-agent/internal/infrastructure/browser/rod"
	"layout-agent/internal/infrastructure/llm/anthropic"
	"layout-agent/internal/infrastructure/llm/openai"
	"layout-agent/internal/infrastructure/logger"
	"layout-agent/internal/usecase/decision"
	"layout-agent/internal/usecase/executor"
	"layout-agent/internal/usecase/navigator"
	"layout-agent/internal/usecase/pool"
	"layout-agent/internal/usecase/snapshot"

	"golang.org/x/time/rate"
)

type Container struct {
	Config    *config.Config
	Logger    output.LoggerPort
	Browser   output.BrowserPort
	LLM       output.LLMPort
	Pool      *pool.Pool
	Navigator input.Navigator
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	log, err := logger.NewLoggerAdapter(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	browserCfg := rod.DefaultConfig()
	browserCfg.Headless = cfg.Browser.Headless
	browserCfg.ViewportWidth = cfg.Browser.ViewportWidth
	browserCfg.ViewportHeight = cfg.Browser.ViewportHeight
	browserCfg.Timeout = cfg.Browser.ActionTimeout
	if cfg.Browser.UserAgent != "" {
		browserCfg.UserAgent = cfg.Browser.UserAgent
	}
	browser, err := rod.NewBrowserAdapter(ctx, browserCfg, log.WithField("component", "browser"))
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}

	llm := newLLM(cfg.LLM, log.WithField("component", "llm"))

	decisionCfg := decision.Config{
		MaxRetries:        cfg.Agent.MaxRetries,
		RetryDelay:        cfg.Agent.RetryDelay,
		BackoffMultiplier: cfg.Agent.BackoffMultiplier,
		MaxBackoff:        cfg.Agent.MaxBackoff,
		Jitter:            true,
		Timeout:           cfg.LLM.DecisionTimeout,
		HistoryWindow:     cfg.Agent.HistoryWindow,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
	}
	if cfg.LLM.RateLimit > 0 {
		decisionCfg.Limiter = rate.NewLimiter(rate.Limit(cfg.LLM.RateLimit), 1)
	}

	contexts := pool.New(browser, cfg.Browser.MaxConcurrent, log.WithField("component", "pool"))

	nav := navigator.New(
		contexts,
		snapshot.New(cfg.Agent.SnapshotMaxElements, log.WithField("component", "snapshot")),
		decision.New(llm, decisionCfg, log.WithField("component", "decision")),
		executor.New(executor.Config{
			ActionTimeout: cfg.Browser.ActionTimeout,
			RetryDelay:    cfg.Agent.RetryDelay,
			ArtifactsDir:  cfg.Browser.ArtifactsDir,
		}, log.WithField("component", "executor")),
		navigator.Config{
			MaxActions:          cfg.Agent.MaxActions,
			ConfidenceThreshold: cfg.Agent.ConfidenceThreshold,
			MaxParseFailures:    cfg.Agent.MaxRetries,
			HistoryWindow:       cfg.Agent.HistoryWindow,
			RunTimeout:          cfg.Agent.RunTimeout,
			DelayMin:            cfg.Browser.RequestDelayMin,
			DelayMax:            cfg.Browser.RequestDelayMax,
		},
		log.WithField("component", "navigator"),
	)

	log.Info("Container ready",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"max_concurrent_browsers", contexts.Size(),
		"headless", cfg.Browser.Headless,
	)

	return &Container{
		Config:    cfg,
		Logger:    log,
		Browser:   browser,
		LLM:       llm,
		Pool:      contexts,
		Navigator: nav,
	}, nil
}

func newLLM(cfg config.LLMConfig, log output.LoggerPort) output.LLMPort {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		c := anthropic.DefaultConfig(cfg.AnthropicKey, cfg.Model)
		c.BaseURL = cfg.BaseURL
		c.Logger = log
		return anthropic.NewAdapter(c)
	case config.ProviderOpenRouter:
		c := openai.OpenRouterConfig(cfg.OpenRouterKey, cfg.Model)
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		c.Logger = log
		return openai.NewAdapter(c)
	default:
		c := openai.DefaultConfig(cfg.OpenAIKey, cfg.Model)
		c.BaseURL = cfg.BaseURL
		c.Logger = log
		return openai.NewAdapter(c)
	}
}

// Close drains the context pool, which also closes the browser, then flushes
// the logger.
func (c *Container) Close(ctx context.Context) {
	if c.Pool != nil {
		if err := c.Pool.Close(ctx); err != nil {
			c.Logger.Warn("Failed to close browser", "error", err)
		}
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}
