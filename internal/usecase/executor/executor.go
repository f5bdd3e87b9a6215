package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"

	"github.com/google/uuid"
)

const (
	maxContentLen = 20000
	verifyPoll    = 100 * time.Millisecond
)

type Config struct {
	ActionTimeout time.Duration
	RetryDelay    time.Duration
	ArtifactsDir  string
}

func DefaultConfig() Config {
	return Config{
		ActionTimeout: 30 * time.Second,
		RetryDelay:    2 * time.Second,
		ArtifactsDir:  "artifacts",
	}
}

// Executor turns an accepted proposal into browser primitives and reports a
// typed Outcome. It never retries more than once.
type Executor struct {
	cfg    Config
	logger output.LoggerPort
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, logger output.LoggerPort) *Executor {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultConfig().ActionTimeout
	}
	return &Executor{cfg: cfg, logger: logger, sleep: sleepCtx}
}

type attemptResult struct {
	selector  string
	success   bool
	reason    entity.FailureReason
	detail    string
	extracted map[string]string
	transient bool
}

// Execute runs p against page. The returned error is non-nil only when the
// page handle itself is gone; every other failure is carried in the Outcome.
func (e *Executor) Execute(ctx context.Context, page output.PageSession, p entity.Proposal) (entity.Outcome, error) {
	start := time.Now()
	out := entity.Outcome{Action: p}

	for attempt := 1; attempt <= 2; attempt++ {
		out.Attempts = attempt
		res, err := e.attempt(ctx, page, p)
		if err != nil {
			out.Reason = entity.ReasonDispatchFailed
			out.Detail = err.Error()
			out.Elapsed = time.Since(start)
			return out, err
		}

		out.SelectorUsed = res.selector
		out.Success = res.success
		out.Reason = res.reason
		out.Detail = res.detail
		out.Extracted = res.extracted

		retry := !res.success && (res.reason.Retryable() || res.transient)
		if !retry || attempt == 2 || ctx.Err() != nil {
			break
		}
		e.logger.Warn("Action failed, retrying once",
			"kind", p.Kind, "reason", res.reason, "detail", res.detail, "delay", e.cfg.RetryDelay)
		if err := e.sleep(ctx, e.cfg.RetryDelay); err != nil {
			break
		}
	}

	out.Elapsed = time.Since(start)
	return out, nil
}

func (e *Executor) attempt(ctx context.Context, page output.PageSession, p entity.Proposal) (attemptResult, error) {
	if p.Kind.NeedsTarget() && len(p.Targets) == 0 && p.TargetDescription == "" {
		return attemptResult{reason: entity.ReasonInvalidAction, detail: fmt.Sprintf("%s without target", p.Kind)}, nil
	}

	var res attemptResult
	if p.Kind.NeedsTarget() || (p.Kind == entity.ActionExtract && p.Params.Extract == entity.ExtractElement) {
		candidates := append(append([]string{}, p.Targets...), fallbackSelectors(p.Kind, p.TargetDescription)...)
		sel, transient, err := e.resolve(ctx, page, candidates)
		if err != nil {
			return res, err
		}
		if sel == "" {
			return attemptResult{
				reason:    entity.ReasonTargetNotFound,
				detail:    fmt.Sprintf("no candidate of %v matched exactly one interactable element", candidates),
				transient: transient,
			}, nil
		}
		res.selector = sel
	}

	actx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()

	// Without a baseline every later fingerprint would look like a change.
	var before entity.Fingerprint
	if p.Kind.Verifiable() {
		fp, err := e.baseline(actx, page)
		if err != nil {
			if errors.Is(err, output.ErrSessionInvalid) {
				return res, err
			}
			if ctx.Err() != nil {
				res.reason = entity.ReasonActionTimeout
				res.detail = ctx.Err().Error()
				return res, nil
			}
			res.reason = entity.ReasonUnverified
			res.detail = fmt.Sprintf("no baseline fingerprint: %v", err)
			res.transient = true
			return res, nil
		}
		before = fp
	}

	extracted, err := e.dispatch(actx, page, p, res.selector)
	if err != nil {
		switch {
		case errors.Is(err, output.ErrSessionInvalid):
			return res, err
		case actx.Err() != nil || errors.Is(err, context.DeadlineExceeded):
			res.reason = entity.ReasonActionTimeout
		case errors.Is(err, output.ErrNoMatch):
			res.reason = entity.ReasonTargetNotFound
		default:
			res.reason = entity.ReasonDispatchFailed
		}
		res.detail = err.Error()
		return res, nil
	}

	if p.Kind.Verifiable() && !e.verify(actx, page, p.Kind, before) {
		if ctx.Err() != nil {
			res.reason = entity.ReasonActionTimeout
			res.detail = ctx.Err().Error()
			return res, nil
		}
		res.reason = entity.ReasonUnverified
		res.detail = fmt.Sprintf("page did not change within %s", e.cfg.ActionTimeout)
		return res, nil
	}

	res.success = true
	res.extracted = extracted
	return res, nil
}

// resolve returns the first candidate matching exactly one interactable
// element. transient is set when a candidate could still resolve on a later
// attempt.
func (e *Executor) resolve(ctx context.Context, page output.PageSession, targets []string) (string, bool, error) {
	transient := false
	for _, sel := range targets {
		m, err := page.Match(ctx, sel)
		if err != nil {
			if errors.Is(err, output.ErrSessionInvalid) {
				return "", false, err
			}
			if !errors.Is(err, output.ErrNoMatch) {
				transient = true
				e.logger.Debug("Selector match failed", "selector", sel, "error", err)
			}
			continue
		}
		switch {
		case m.Count == 1 && m.Interactable:
			return sel, false, nil
		case m.Count == 1:
			transient = true
		}
		e.logger.Debug("Selector rejected", "selector", sel, "count", m.Count, "interactable", m.Interactable)
	}
	return "", transient, nil
}

func (e *Executor) dispatch(ctx context.Context, page output.PageSession, p entity.Proposal, sel string) (map[string]string, error) {
	switch p.Kind {
	case entity.ActionClick:
		return nil, page.Click(ctx, sel)
	case entity.ActionType:
		return nil, page.Fill(ctx, sel, p.Params.Text, p.Params.PressEnter)
	case entity.ActionScroll:
		return nil, page.Scroll(ctx, p.Params.Direction, p.Params.Amount)
	case entity.ActionWait:
		return nil, page.WaitFor(ctx, p.Params.Wait)
	case entity.ActionNavigate:
		return nil, page.Goto(ctx, p.Params.URL)
	case entity.ActionExtract:
		return e.extract(ctx, page, p.Params, sel)
	}
	return nil, fmt.Errorf("unsupported action kind %q", p.Kind)
}

func (e *Executor) extract(ctx context.Context, page output.PageSession, params entity.ActionParams, sel string) (map[string]string, error) {
	kind := params.Extract
	if kind == "" {
		kind = entity.ExtractText
	}
	key := params.Key
	if key == "" {
		key = string(kind)
	}

	var value string
	switch kind {
	case entity.ExtractLinks:
		links, err := page.Links(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(links)
		if err != nil {
			return nil, fmt.Errorf("encode links: %w", err)
		}
		value = string(raw)
	case entity.ExtractScreenshot:
		shot, err := page.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		path, err := e.saveScreenshot(shot)
		if err != nil {
			return nil, err
		}
		value = path
	default:
		content, err := page.ReadContent(ctx, kind, sel)
		if err != nil {
			return nil, err
		}
		value = content
	}

	if value == "" {
		return nil, fmt.Errorf("extract %s returned no content", kind)
	}
	return map[string]string{key: truncate(value, maxContentLen)}, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n... (truncated)"
}

func (e *Executor) saveScreenshot(shot *entity.Screenshot) (string, error) {
	dir := e.cfg.ArtifactsDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	ext := shot.Format
	if ext == "" || ext == "jpeg" {
		ext = "jpg"
	}
	path := filepath.Join(dir, fmt.Sprintf("screenshot-%s.%s", uuid.NewString(), ext))
	if err := os.WriteFile(path, shot.Data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	e.logger.Info("Screenshot saved", "path", path, "bytes", len(shot.Data))
	return path, nil
}

// baseline reads the pre-action fingerprint, polling until a read succeeds.
// It returns the last read error once ctx is done.
func (e *Executor) baseline(ctx context.Context, page output.PageSession) (entity.Fingerprint, error) {
	ticker := time.NewTicker(verifyPoll)
	defer ticker.Stop()
	for {
		fp, err := page.Fingerprint(ctx)
		if err == nil || errors.Is(err, output.ErrSessionInvalid) {
			return fp, err
		}
		e.logger.Debug("Fingerprint read failed", "error", err)
		select {
		case <-ctx.Done():
			return entity.Fingerprint{}, err
		case <-ticker.C:
		}
	}
}

// verify polls the fingerprint until the page differs from before. A
// navigation also counts once the load state is complete.
func (e *Executor) verify(ctx context.Context, page output.PageSession, kind entity.ActionKind, before entity.Fingerprint) bool {
	ticker := time.NewTicker(verifyPoll)
	defer ticker.Stop()
	for {
		fp, err := page.Fingerprint(ctx)
		if err == nil {
			if fp.Changed(before) || (kind == entity.ActionNavigate && fp.LoadComplete) {
				return true
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
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
