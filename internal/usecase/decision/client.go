package decision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"
	"layout-agent/internal/infrastructure/prompts"

	"golang.org/x/time/rate"
)

var _ output.DecisionPort = (*Client)(nil)

type Config struct {
	MaxRetries        int
	RetryDelay        time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	Jitter            bool
	Timeout           time.Duration
	HistoryWindow     int
	Temperature       float32
	MaxTokens         int
	// Limiter paces calls across every run sharing this client. Nil means
	// unlimited.
	Limiter *rate.Limiter
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		RetryDelay:        2 * time.Second,
		BackoffMultiplier: 2,
		MaxBackoff:        30 * time.Second,
		Timeout:           60 * time.Second,
		HistoryWindow:     10,
		Temperature:       0.1,
		MaxTokens:         1000,
	}
}

// Client asks the reasoning service for the next action.
type Client struct {
	llm    output.LLMPort
	cfg    Config
	logger output.LoggerPort
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(llm output.LLMPort, cfg Config, logger output.LoggerPort) *Client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	return &Client{llm: llm, cfg: cfg, logger: logger, sleep: sleepCtx}
}

// Propose sends one request and parses the reply. Transient upstream failures
// are retried with exponential backoff; a malformed reply is returned at once
// as *output.ProposalParseError.
func (c *Client) Propose(ctx context.Context, snap entity.Snapshot, goal string, history []entity.HistoryEntry) (entity.Proposal, error) {
	userPrompt, err := prompts.GenerateContext(prompts.NewContextData(snap, goal, c.window(history)))
	if err != nil {
		return entity.Proposal{}, err
	}

	req := output.ChatRequest{
		Messages: []entity.Message{
			entity.SystemMessage(prompts.SystemPrompt),
			entity.UserMessage(userPrompt),
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		JSONOutput:  true,
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if c.cfg.Limiter != nil {
			if err := c.cfg.Limiter.Wait(ctx); err != nil {
				return entity.Proposal{}, fmt.Errorf("rate limiter: %w", err)
			}
		}

		start := time.Now()
		resp, err := c.chat(ctx, req)
		if err == nil {
			c.logger.Debug("Decision received", "attempt", attempt, "elapsed", time.Since(start))
			return ParseProposal(resp.Message.Content)
		}

		if ctx.Err() != nil {
			return entity.Proposal{}, ctx.Err()
		}
		if !transient(err) {
			return entity.Proposal{}, fmt.Errorf("%w: %v", output.ErrDecisionUnavailable, err)
		}

		lastErr = err
		if attempt == c.cfg.MaxRetries {
			break
		}
		delay := c.backoff(attempt)
		c.logger.Warn("Decision call failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return entity.Proposal{}, err
		}
	}
	return entity.Proposal{}, fmt.Errorf("%w after %d attempts: %v", output.ErrDecisionUnavailable, c.cfg.MaxRetries, lastErr)
}

func (c *Client) chat(ctx context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	return c.llm.Chat(ctx, req)
}

func (c *Client) window(history []entity.HistoryEntry) []entity.HistoryEntry {
	n := c.cfg.HistoryWindow
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// backoff is RetryDelay * multiplier^(attempt-1), capped at MaxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	d := float64(c.cfg.RetryDelay) * math.Pow(c.cfg.BackoffMultiplier, float64(attempt-1))
	if c.cfg.MaxBackoff > 0 && (d > float64(c.cfg.MaxBackoff) || d <= 0) {
		d = float64(c.cfg.MaxBackoff)
	}
	duration := time.Duration(d)
	if c.cfg.Jitter && duration > 0 {
		duration = time.Duration(float64(duration) * (0.5 + rand.Float64()*0.5))
	}
	return duration
}

func transient(err error) bool {
	return errors.Is(err, output.ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
