package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"layout-agent/internal/application/port/output"
	"layout-agent/internal/domain/entity"
	"layout-agent/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T) (*Executor, *[]time.Duration) {
	t.Helper()
	e := New(Config{
		ActionTimeout: 200 * time.Millisecond,
		RetryDelay:    time.Second,
		ArtifactsDir:  t.TempDir(),
	}, testutil.NopLogger{})
	var slept []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return e, &slept
}

func click(targets ...string) entity.Proposal {
	return entity.Proposal{Kind: entity.ActionClick, Targets: targets, Confidence: 0.9}
}

func TestExecute_Click(t *testing.T) {
	e, slept := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.ChangeOnAction = true
	page.Matches["#btn"] = entity.Match{Count: 1, Interactable: true}

	out, err := e.Execute(context.Background(), page, click("#btn"))
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, "#btn", out.SelectorUsed)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, entity.ReasonNone, out.Reason)
	assert.Empty(t, *slept)
	assert.Contains(t, page.Calls(), "click #btn")
}

func TestExecute_SecondCandidateUsed(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.ChangeOnAction = true
	page.Matches["#missing"] = entity.Match{Count: 0}
	page.Matches["#present"] = entity.Match{Count: 1, Interactable: true}

	out, err := e.Execute(context.Background(), page, click("#missing", "#present"))
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, "#present", out.SelectorUsed)
	assert.Equal(t, []string{"match #missing", "match #present", "click #present"}, page.Calls())
}

func TestExecute_AmbiguousAndMissingTargets(t *testing.T) {
	e, slept := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.Matches[".dup"] = entity.Match{Count: 2}

	out, err := e.Execute(context.Background(), page, click(".dup", "#gone"))
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, entity.ReasonTargetNotFound, out.Reason)
	assert.Equal(t, 1, out.Attempts, "exhausted candidates are not retried")
	assert.Empty(t, *slept)
	for _, c := range page.Calls() {
		assert.False(t, strings.HasPrefix(c, "click"), "unexpected dispatch %q", c)
	}
}

func TestExecute_TransientResolutionRetriedOnce(t *testing.T) {
	e, slept := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.ChangeOnAction = true
	page.Matches["#btn"] = entity.Match{Count: 1, Interactable: true}
	page.MatchErrs["#btn"] = []error{errors.New("execution context was destroyed")}

	out, err := e.Execute(context.Background(), page, click("#btn"))
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, []time.Duration{time.Second}, *slept)
}

func TestExecute_TimeoutRetriedAtMostOnce(t *testing.T) {
	e, slept := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.BlockActions = true
	page.Matches["#btn"] = entity.Match{Count: 1, Interactable: true}

	out, err := e.Execute(context.Background(), page, click("#btn"))
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, entity.ReasonActionTimeout, out.Reason)
	assert.Equal(t, 2, out.Attempts)
	assert.Len(t, *slept, 1)
}

func TestExecute_Unverified(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.Matches["#noop"] = entity.Match{Count: 1, Interactable: true}

	out, err := e.Execute(context.Background(), page, click("#noop"))
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, entity.ReasonUnverified, out.Reason)
	assert.Equal(t, 1, out.Attempts)
}

func TestExecute_UnverifiedAfterFailedBaselineRead(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.FingerprintErrs = []error{errors.New("evaluate: execution context was destroyed")}
	page.Matches["#btn"] = entity.Match{Count: 1, Interactable: true}

	out, err := e.Execute(context.Background(), page, click("#btn"))
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, entity.ReasonUnverified, out.Reason)
	assert.Contains(t, page.Calls(), "click #btn")
}

func TestExecute_BaselineUnreadable(t *testing.T) {
	e, slept := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.ChangeOnAction = true
	for range 20 {
		page.FingerprintErrs = append(page.FingerprintErrs, errors.New("evaluate: page is navigating"))
	}
	page.Matches["#btn"] = entity.Match{Count: 1, Interactable: true}

	out, err := e.Execute(context.Background(), page, click("#btn"))
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, entity.ReasonUnverified, out.Reason)
	assert.Contains(t, out.Detail, "no baseline fingerprint")
	assert.Equal(t, 2, out.Attempts)
	assert.Len(t, *slept, 1)
	assert.NotContains(t, page.Calls(), "click #btn")
}

func TestExecute_DescriptionFallback(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.ChangeOnAction = true
	tab := "//*[@role='tab'][contains(normalize-space(.), 'Discussion')]"
	page.Matches[tab] = entity.Match{Count: 1, Interactable: true}

	p := click("#gone")
	p.TargetDescription = "Discussion tab"
	out, err := e.Execute(context.Background(), page, p)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, tab, out.SelectorUsed)
	calls := page.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, "match #gone", calls[0])
	assert.Contains(t, calls, "click "+tab)
}

func TestExecute_TypeByDescriptionOnly(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	sel := "//input[contains(@name, 'search')]"
	page.Matches[sel] = entity.Match{Count: 1, Interactable: true}

	out, err := e.Execute(context.Background(), page, entity.Proposal{
		Kind:              entity.ActionType,
		TargetDescription: "Search box",
		Params:            entity.ActionParams{Text: "golang"},
	})
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, sel, out.SelectorUsed)
	assert.Contains(t, page.Calls(), "fill "+sel)
}

func TestExecute_SessionInvalid(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.MatchErrs["#btn"] = []error{fmt.Errorf("%w: target closed", output.ErrSessionInvalid)}

	_, err := e.Execute(context.Background(), page, click("#btn"))

	assert.ErrorIs(t, err, output.ErrSessionInvalid)
}

func TestExecute_ClickWithoutTarget(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")

	out, err := e.Execute(context.Background(), page, click())
	require.NoError(t, err)

	assert.Equal(t, entity.ReasonInvalidAction, out.Reason)
	assert.Empty(t, page.Calls())
}

func TestExecute_Navigate(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")

	out, err := e.Execute(context.Background(), page, entity.Proposal{
		Kind:   entity.ActionNavigate,
		Params: entity.ActionParams{URL: "https://example.com/next"},
	})
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, "https://example.com/next", page.URL())
}

func TestExecute_ScrollAndWait(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")

	out, err := e.Execute(context.Background(), page, entity.Proposal{
		Kind:   entity.ActionScroll,
		Params: entity.ActionParams{Direction: "down", Amount: 400},
	})
	require.NoError(t, err)
	assert.True(t, out.Success)

	out, err = e.Execute(context.Background(), page, entity.Proposal{
		Kind:   entity.ActionWait,
		Params: entity.ActionParams{Wait: entity.WaitCondition{Type: entity.WaitLoadState}},
	})
	require.NoError(t, err)
	assert.True(t, out.Success)

	assert.Equal(t, []string{"scroll down 400", "wait load_state"}, page.Calls())
}

func TestExecute_Extract(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.Content[entity.ExtractText] = "Discussion: 12 comments"
	page.LinkList = []entity.Link{{Text: "Docs", Href: "https://example.com/docs"}}

	out, err := e.Execute(context.Background(), page, entity.Proposal{Kind: entity.ActionExtract})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, map[string]string{"text": "Discussion: 12 comments"}, out.Extracted)

	out, err = e.Execute(context.Background(), page, entity.Proposal{
		Kind:   entity.ActionExtract,
		Params: entity.ActionParams{Extract: entity.ExtractLinks, Key: "nav"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"text":"Docs","href":"https://example.com/docs"}]`, out.Extracted["nav"])
}

func TestExecute_ExtractTruncatesOnRuneBoundary(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")
	page.Content[entity.ExtractText] = "a" + strings.Repeat("é", maxContentLen)

	out, err := e.Execute(context.Background(), page, entity.Proposal{Kind: entity.ActionExtract})
	require.NoError(t, err)
	require.True(t, out.Success)

	got := out.Extracted["text"]
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "\n... (truncated)"))
	assert.LessOrEqual(t, len(strings.TrimSuffix(got, "\n... (truncated)")), maxContentLen)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab\n... (truncated)", truncate("abcd", 2))
	// "é" is two bytes; cutting at 2 would split the second one.
	assert.Equal(t, "a\n... (truncated)", truncate("aéé", 2))
	assert.Equal(t, "\n... (truncated)", truncate("日本", 1))
}

func TestExecute_ExtractEmpty(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")

	out, err := e.Execute(context.Background(), page, entity.Proposal{Kind: entity.ActionExtract})
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, entity.ReasonDispatchFailed, out.Reason)
}

func TestExecute_ExtractScreenshot(t *testing.T) {
	e, _ := newExecutor(t)
	page := testutil.NewFakePage("https://example.com")

	out, err := e.Execute(context.Background(), page, entity.Proposal{
		Kind:   entity.ActionExtract,
		Params: entity.ActionParams{Extract: entity.ExtractScreenshot},
	})
	require.NoError(t, err)
	require.True(t, out.Success)

	path := out.Extracted["screenshot"]
	assert.True(t, strings.HasSuffix(path, ".jpg"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
}

func TestExecute_CancelledDuringDispatch(t *testing.T) {
	e, slept := newExecutor(t)
	e.cfg.ActionTimeout = time.Minute
	page := testutil.NewFakePage("https://example.com")
	page.BlockActions = true
	page.Matches["#btn"] = entity.Match{Count: 1, Interactable: true}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := e.Execute(ctx, page, click("#btn"))
	require.NoError(t, err)

	assert.Equal(t, entity.ReasonActionTimeout, out.Reason)
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, *slept)
}
