package navigator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"layout-agent/internal/application/port/input"
	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"
	"layout-agent/internal/usecase/report"

	"github.com/google/uuid"
)

var _ input.Navigator = (*UseCase)(nil)

type PagePool interface {
	WithPage(ctx context.Context, fn func(ctx context.Context, page output.PageSession) error) error
}

type Capturer interface {
	Capture(ctx context.Context, page output.PageSession) entity.Snapshot
}

type Executor interface {
	Execute(ctx context.Context, page output.PageSession, p entity.Proposal) (entity.Outcome, error)
}

type Config struct {
	MaxActions          int
	ConfidenceThreshold float64
	// MaxParseFailures consecutive unparseable proposals make the decision
	// service unavailable for the run.
	MaxParseFailures int
	HistoryWindow    int
	RunTimeout       time.Duration
	DelayMin         time.Duration
	DelayMax         time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxActions:          20,
		ConfidenceThreshold: 0.5,
		MaxParseFailures:    3,
		HistoryWindow:       10,
		RunTimeout:          10 * time.Minute,
		DelayMin:            time.Second,
		DelayMax:            3 * time.Second,
	}
}

const closeTimeout = 5 * time.Second

type UseCase struct {
	pool     PagePool
	capturer Capturer
	decision output.DecisionPort
	executor Executor
	cfg      Config
	logger   output.LoggerPort
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(
	pool PagePool,
	capturer Capturer,
	decision output.DecisionPort,
	executor Executor,
	cfg Config,
	logger output.LoggerPort,
) *UseCase {
	if cfg.MaxParseFailures < 1 {
		cfg.MaxParseFailures = 1
	}
	return &UseCase{
		pool:     pool,
		capturer: capturer,
		decision: decision,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Run drives one session to a terminal state. The returned error is set when
// the session could not be established or the run context ended; the report
// is never nil.
func (uc *UseCase) Run(ctx context.Context, req input.RunRequest) (*entity.Report, error) {
	if req.MaxActions == 0 {
		req.MaxActions = uc.cfg.MaxActions
	}
	runID := uuid.NewString()

	session, err := entity.NewSession(runID, req.URL, req.Goal, req.MaxActions)
	if err != nil {
		return &entity.Report{
			RunID:             runID,
			Goal:              req.Goal,
			FinalURL:          req.URL,
			ExtractedKeys:     []string{},
			TerminationReason: entity.StateFailed,
			Error:             err.Error(),
		}, err
	}

	log := uc.logger.WithFields(map[string]any{"run_id": runID, "url": req.URL})
	log.Info("Run started", "goal", req.Goal, "max_actions", req.MaxActions)

	if uc.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.RunTimeout)
		defer cancel()
	}
	_ = session.Start(uc.now())

	runErr := uc.pool.WithPage(ctx, func(ctx context.Context, page output.PageSession) error {
		c := &controller{uc: uc, session: session, page: page, logger: log}
		return c.run(ctx)
	})

	if !session.Sealed() {
		kind := entity.ErrorSession
		if ctx.Err() != nil {
			kind = entity.ErrorCancelled
		}
		msg := "run ended without a terminal state"
		if runErr != nil {
			msg = runErr.Error()
		}
		session.AddError(kind, msg)
		_ = session.Seal(entity.StateFailed, req.URL, uc.now())
	}

	rep, err := report.Finalize(session)
	if err != nil {
		return rep, err
	}
	log.Info("Run finished",
		"state", rep.TerminationReason,
		"actions", rep.TotalActions,
		"executed", rep.Executed,
		"skipped", rep.Skipped,
		"errors", rep.ErrorCount,
		"duration_ms", rep.DurationMs,
	)
	if runErr != nil {
		log.Error("Run aborted", "error", runErr)
	}
	return rep, runErr
}

// controller is the per-run state machine: Idle, Running, then one of
// Succeeded, Failed or Exhausted.
type controller struct {
	uc            *UseCase
	session       *entity.Session
	page          output.PageSession
	logger        output.LoggerPort
	parseFailures int
}

func (c *controller) run(ctx context.Context) error {
	if err := c.page.Goto(ctx, c.session.URL); err != nil {
		c.session.AddError(entity.ErrorSession, err.Error())
		c.seal(ctx, entity.StateFailed)
		return fmt.Errorf("load start url: %w", err)
	}
	c.session.Visit(c.page.URL())

	state := entity.StateRunning
	for !state.Terminal() {
		if ctx.Err() != nil {
			c.session.AddError(entity.ErrorCancelled, ctx.Err().Error())
			state = entity.StateFailed
			break
		}
		state = c.tick(ctx)
	}
	c.seal(ctx, state)

	if err := ctx.Err(); err != nil && state == entity.StateFailed {
		return fmt.Errorf("run %s: %w", c.session.RunID, err)
	}
	return nil
}

func (c *controller) tick(ctx context.Context) entity.RunState {
	tick := c.session.Count() + 1
	log := c.logger.WithField("tick", tick)

	snap := c.uc.capturer.Capture(ctx, c.page)
	if snap.Degraded {
		c.session.AddError(entity.ErrorSnapshotDegraded, snap.Reason)
	}

	proposal, err := c.uc.decision.Propose(ctx, snap, c.session.Goal, c.session.History(c.uc.cfg.HistoryWindow))
	if err != nil {
		return c.decisionFailed(ctx, log, err)
	}
	c.parseFailures = 0

	log.Info("Proposal received",
		"kind", proposal.Kind,
		"targets", proposal.Targets,
		"description", proposal.TargetDescription,
		"confidence", proposal.Confidence,
		"rationale", proposal.Rationale,
	)

	if proposal.Confidence < c.uc.cfg.ConfidenceThreshold {
		log.Warn("Proposal below confidence threshold, skipping",
			"confidence", proposal.Confidence, "threshold", c.uc.cfg.ConfidenceThreshold)
		c.record(log, entity.Outcome{
			Action:  proposal,
			Skipped: true,
			Reason:  entity.ReasonLowConfidence,
			Detail:  fmt.Sprintf("confidence %.2f below %.2f", proposal.Confidence, c.uc.cfg.ConfidenceThreshold),
		})
		return c.next()
	}

	proposal = resolve(snap, proposal)
	outcome, err := c.uc.executor.Execute(ctx, c.page, proposal)
	c.record(log, outcome)

	if err != nil {
		log.Error("Browser session lost", "error", err)
		c.session.AddError(entity.ErrorSession, err.Error())
		return entity.StateFailed
	}
	if ctx.Err() != nil {
		c.session.AddError(entity.ErrorCancelled, ctx.Err().Error())
		return entity.StateFailed
	}

	if !outcome.Success {
		log.Warn("Action failed", "kind", proposal.Kind, "reason", outcome.Reason, "detail", outcome.Detail, "attempts", outcome.Attempts)
		c.session.AddError(entity.ErrorAction, fmt.Sprintf("%s %s: %s", proposal.Kind, outcome.Reason, outcome.Detail))
		return c.next()
	}

	c.session.Visit(c.page.URL())
	log.Info("Action succeeded", "kind", proposal.Kind, "selector", outcome.SelectorUsed, "elapsed", outcome.Elapsed)

	if proposal.Kind == entity.ActionExtract || proposal.GoalSatisfied {
		log.Info("Goal satisfied")
		return entity.StateSucceeded
	}
	if state := c.next(); state.Terminal() {
		return state
	}
	_ = c.uc.sleep(ctx, c.uc.delay())
	return entity.StateRunning
}

func (c *controller) decisionFailed(ctx context.Context, log output.LoggerPort, err error) entity.RunState {
	if ctx.Err() != nil {
		c.session.AddError(entity.ErrorCancelled, ctx.Err().Error())
		return entity.StateFailed
	}

	var perr *output.ProposalParseError
	if !errors.As(err, &perr) {
		log.Error("Decision service unavailable", "error", err)
		c.session.AddError(entity.ErrorDecisionUnavailable, err.Error())
		return entity.StateFailed
	}

	c.parseFailures++
	log.Warn("Unparseable proposal, skipping tick", "error", err, "consecutive", c.parseFailures)
	c.session.AddError(entity.ErrorProposalParse, err.Error())
	c.record(log, entity.Outcome{
		Skipped: true,
		Reason:  entity.ReasonProposalParse,
		Detail:  perr.Reason,
	})
	if c.parseFailures >= c.uc.cfg.MaxParseFailures {
		c.session.AddError(entity.ErrorDecisionUnavailable,
			fmt.Sprintf("%d consecutive unparseable proposals", c.parseFailures))
		return entity.StateFailed
	}
	return c.next()
}

func (c *controller) record(log output.LoggerPort, o entity.Outcome) {
	if err := c.session.Record(o); err != nil {
		log.Error("Outcome dropped", "error", err)
	}
}

func (c *controller) next() entity.RunState {
	if c.session.Budget() <= 0 {
		return entity.StateExhausted
	}
	return entity.StateRunning
}

func (c *controller) seal(ctx context.Context, state entity.RunState) {
	// the page may still answer after the run context ended
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	if len(c.session.Extracted()) == 0 {
		if title := c.page.Title(rctx); title != "" {
			c.session.SetExtracted("title", title)
		}
	}
	finalURL := c.page.URL()
	if finalURL == "" {
		finalURL = c.session.URL
	}
	if err := c.session.Seal(state, finalURL, c.uc.now()); err != nil {
		c.logger.Error("Seal failed", "error", err)
	}
}

// resolve swaps snapshot element ids for their selectors.
func resolve(snap entity.Snapshot, p entity.Proposal) entity.Proposal {
	p.Targets = snap.ResolveTargets(p.Targets)
	if p.Params.Wait.Type == entity.WaitElement && p.Params.Wait.Selector != "" {
		if sel := snap.ResolveTargets([]string{p.Params.Wait.Selector}); len(sel) == 1 {
			p.Params.Wait.Selector = sel[0]
		}
	}
	return p
}

func (uc *UseCase) delay() time.Duration {
	lo, hi := uc.cfg.DelayMin, uc.cfg.DelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
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
