package navigator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"layout-agent/internal/application/port/input"
	"layout-agent/internal/domain/entity"
	"layout-agent/internal/testutil"
	"layout-agent/internal/usecase/decision"
	"layout-agent/internal/usecase/executor"
	"layout-agent/internal/usecase/pool"
	"layout-agent/internal/usecase/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const startURL = "https://example.com/repo"

type fixture struct {
	uc      *UseCase
	browser *testutil.FakeBrowser
	llm     *testutil.FakeLLM
}

type options struct {
	cfg           Config
	actionTimeout time.Duration
	page          func(p *testutil.FakePage)
}

func newFixture(t *testing.T, opts options, replies ...string) *fixture {
	t.Helper()
	logger := testutil.NopLogger{}

	browser := &testutil.FakeBrowser{NewPage: func() *testutil.FakePage {
		p := testutil.NewFakePage("about:blank")
		p.ChangeOnAction = true
		p.Tree = &entity.AXTree{Nodes: []entity.AXNode{
			{Role: "heading", Name: "repo", HasBox: true, Selector: "h1"},
			{Role: "link", Name: "Discussion", HasBox: true, Interactable: true, Selector: "#discussion"},
		}}
		p.Matches["#discussion"] = entity.Match{Count: 1, Interactable: true}
		if opts.page != nil {
			opts.page(p)
		}
		return p
	}}
	llm := &testutil.FakeLLM{Replies: replies}

	cfg := opts.cfg
	if cfg.MaxActions == 0 {
		cfg = DefaultConfig()
		cfg.DelayMin, cfg.DelayMax = 0, 0
	}
	timeout := opts.actionTimeout
	if timeout == 0 {
		timeout = 200 * time.Millisecond
	}

	uc := New(
		pool.New(browser, 2, logger),
		snapshot.New(0, logger),
		decision.New(llm, decision.Config{MaxRetries: 3, HistoryWindow: 10, MaxTokens: 100}, logger),
		executor.New(executor.Config{ActionTimeout: timeout, ArtifactsDir: t.TempDir()}, logger),
		cfg,
		logger,
	)
	return &fixture{uc: uc, browser: browser, llm: llm}
}

func (f *fixture) page(t *testing.T) *testutil.FakePage {
	t.Helper()
	pages := f.browser.Pages()
	require.Len(t, pages, 1)
	return pages[0]
}

func TestRun_ConfidentClickSatisfiesGoal(t *testing.T) {
	f := newFixture(t, options{},
		`{"action_type":"click","targets":["e2"],"confidence":0.9,"reasoning":"open discussion","goal_satisfied":true}`)

	rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, Goal: "open the discussion tab", MaxActions: 5})
	require.NoError(t, err)

	assert.Equal(t, entity.StateSucceeded, rep.TerminationReason)
	assert.Equal(t, 1, rep.TotalActions)
	assert.Equal(t, 1, rep.Executed)
	assert.Equal(t, 0, rep.ErrorCount)
	assert.Equal(t, []entity.StrategyReport{{Kind: entity.ActionClick, Selector: "#discussion", Rank: 1}}, rep.SelectorStrategies)
	assert.Equal(t, []string{"title"}, rep.ExtractedKeys)
	assert.Equal(t, startURL, rep.FinalURL)
	assert.NotEmpty(t, rep.RunID)

	page := f.page(t)
	assert.Contains(t, page.Calls(), "click #discussion")
	assert.True(t, page.Closed())
}

func TestRun_MalformedProposalsFailRun(t *testing.T) {
	f := newFixture(t, options{}, "Sorry, I can't decide what to do here.")

	rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, Goal: "find pricing", MaxActions: 10})
	require.NoError(t, err)

	assert.Equal(t, entity.StateFailed, rep.TerminationReason)
	assert.Equal(t, 3, f.llm.Calls())
	assert.Equal(t, 3, rep.TotalActions)
	assert.Equal(t, 3, rep.Skipped)
	assert.Equal(t, 0, rep.Executed)
	assert.GreaterOrEqual(t, rep.ErrorCount, 1)
	assert.Contains(t, rep.Error, string(entity.ErrorDecisionUnavailable))
}

func TestRun_LowConfidenceExhaustsBudget(t *testing.T) {
	f := newFixture(t, options{}, `{"action_type":"click","targets":["e2"],"confidence":0.1}`)

	rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, Goal: "open the discussion tab", MaxActions: 3})
	require.NoError(t, err)

	assert.Equal(t, entity.StateExhausted, rep.TerminationReason)
	assert.Equal(t, 3, rep.TotalActions)
	assert.Equal(t, 0, rep.Executed)
	assert.Equal(t, 3, rep.Skipped)

	for _, call := range f.page(t).Calls() {
		assert.False(t, strings.HasPrefix(call, "click") || strings.HasPrefix(call, "match"),
			"executor must not run for skipped ticks, saw %q", call)
	}
}

func TestRun_ActionLogNeverExceedsBudget(t *testing.T) {
	for max := 1; max <= 4; max++ {
		f := newFixture(t, options{}, `{"action_type":"scroll","parameters":{"direction":"down"},"confidence":0.8}`)

		rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, Goal: "reach the footer", MaxActions: max})
		require.NoError(t, err)

		assert.Equal(t, entity.StateExhausted, rep.TerminationReason)
		assert.Equal(t, max, rep.TotalActions)
		assert.Equal(t, max, f.llm.Calls())
	}
}

func TestRun_ExtractSucceeds(t *testing.T) {
	f := newFixture(t, options{page: func(p *testutil.FakePage) {
		p.Content[entity.ExtractText] = "12 open discussions"
	}},
		`{"action_type":"extract","parameters":{"key":"summary"},"confidence":0.95}`)

	rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, Goal: "summarise the page", MaxActions: 5})
	require.NoError(t, err)

	assert.Equal(t, entity.StateSucceeded, rep.TerminationReason)
	assert.Equal(t, []string{"summary"}, rep.ExtractedKeys)
	assert.Equal(t, "12 open discussions", rep.Extracted["summary"])
}

func TestRun_FailedActionsAreRecordedAndFedBack(t *testing.T) {
	f := newFixture(t, options{},
		`{"action_type":"click","targets":["#nope"],"confidence":0.9}`,
		`{"action_type":"click","targets":["e2"],"confidence":0.9,"goal_satisfied":true}`)

	rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, Goal: "open the discussion tab", MaxActions: 5})
	require.NoError(t, err)

	assert.Equal(t, entity.StateSucceeded, rep.TerminationReason)
	assert.Equal(t, 2, rep.TotalActions)
	assert.Equal(t, 1, rep.ErrorCount)

	require.Len(t, f.llm.Requests, 2)
	prompt := f.llm.Requests[1].Messages[1].Content
	assert.Contains(t, prompt, "#nope")
	assert.Contains(t, prompt, string(entity.ReasonTargetNotFound))
}

func TestRun_DecisionUnavailable(t *testing.T) {
	f := newFixture(t, options{})
	f.llm.Errs = []error{errors.New("401 invalid api key")}

	rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, Goal: "anything", MaxActions: 5})
	require.NoError(t, err)

	assert.Equal(t, entity.StateFailed, rep.TerminationReason)
	assert.Equal(t, 0, rep.TotalActions)
	assert.Contains(t, rep.Error, "invalid api key")
}

func TestRun_StartURLFailure(t *testing.T) {
	f := newFixture(t, options{page: func(p *testutil.FakePage) {
		p.GotoErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	}}, `{"action_type":"scroll","confidence":0.9}`)

	rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, Goal: "anything", MaxActions: 5})

	require.Error(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, entity.StateFailed, rep.TerminationReason)
	assert.Contains(t, rep.Error, "ERR_NAME_NOT_RESOLVED")
	assert.Equal(t, 0, f.llm.Calls())
	assert.True(t, f.page(t).Closed())
}

func TestRun_InvalidRequest(t *testing.T) {
	f := newFixture(t, options{})

	rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, MaxActions: 5})

	assert.ErrorIs(t, err, entity.ErrInvalidRequest)
	require.NotNil(t, rep)
	assert.Equal(t, entity.StateFailed, rep.TerminationReason)
	assert.Equal(t, 0, f.browser.Opened())
}

func TestRun_CancelledDuringDispatch(t *testing.T) {
	f := newFixture(t, options{
		actionTimeout: time.Minute,
		page:          func(p *testutil.FakePage) { p.BlockActions = true },
	}, `{"action_type":"click","targets":["e2"],"confidence":0.9}`)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	rep, err := f.uc.Run(ctx, input.RunRequest{URL: startURL, Goal: "open the discussion tab", MaxActions: 5})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, entity.StateFailed, rep.TerminationReason)
	assert.Equal(t, 1, rep.TotalActions)
	assert.Contains(t, rep.Error, string(entity.ErrorCancelled))
	assert.True(t, f.page(t).Closed())
}

func TestRun_RunTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DelayMin, cfg.DelayMax = 0, 0
	cfg.RunTimeout = 100 * time.Millisecond
	f := newFixture(t, options{
		cfg:           cfg,
		actionTimeout: time.Minute,
		page:          func(p *testutil.FakePage) { p.BlockActions = true },
	}, `{"action_type":"click","targets":["e2"],"confidence":0.9}`)

	rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, Goal: "open the discussion tab", MaxActions: 5})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, entity.StateFailed, rep.TerminationReason)
}

func TestRun_ConcurrentSessionsAreIsolated(t *testing.T) {
	f := newFixture(t, options{},
		`{"action_type":"click","targets":["e2"],"confidence":0.9,"goal_satisfied":true}`)

	const runs = 4
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		go func() {
			rep, err := f.uc.Run(context.Background(), input.RunRequest{URL: startURL, Goal: "open the discussion tab", MaxActions: 3})
			if err == nil && rep.TerminationReason != entity.StateSucceeded {
				err = errors.New("unexpected state " + string(rep.TerminationReason))
			}
			errs <- err
		}()
	}
	for i := 0; i < runs; i++ {
		require.NoError(t, <-errs)
	}

	pages := f.browser.Pages()
	require.Len(t, pages, runs)
	for _, p := range pages {
		assert.True(t, p.Closed())
	}
}

func TestDelay(t *testing.T) {
	uc := &UseCase{cfg: Config{DelayMin: time.Second, DelayMax: 3 * time.Second}}
	for i := 0; i < 20; i++ {
		d := uc.delay()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}

	uc.cfg.DelayMax = 0
	assert.Equal(t, time.Second, uc.delay())
}
