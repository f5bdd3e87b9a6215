package snapshot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"layout-agent/internal/domain/entity"
	"layout-agent/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(name string, interactable bool) entity.AXNode {
	return entity.AXNode{Role: "button", Name: name, HasBox: true, Interactable: interactable, Selector: "#" + name}
}

func TestBuild_DocumentOrderIDs(t *testing.T) {
	tree := &entity.AXTree{
		URL:   "https://example.com",
		Title: "Example",
		Nodes: []entity.AXNode{node("a", false), node("b", true), node("c", true)},
	}

	snap := Build(tree, 10)

	assert.Equal(t, []string{"e1", "e2", "e3"}, snap.Order)
	assert.Equal(t, "a", snap.Elements["e1"].Name)
	assert.Equal(t, "#b", snap.Elements["e2"].Selector())
	assert.False(t, snap.Degraded)
}

func TestBuild_CapPrefersInteractable(t *testing.T) {
	var nodes []entity.AXNode
	for i := 0; i < 5; i++ {
		nodes = append(nodes, node(fmt.Sprintf("h%d", i), false))
	}
	nodes = append(nodes, node("x", true), node("y", true))

	snap := Build(&entity.AXTree{Nodes: nodes}, 3)

	require.Len(t, snap.Order, 3)
	assert.Equal(t, "h0", snap.Elements["e1"].Name)
	assert.Equal(t, "x", snap.Elements["e2"].Name)
	assert.Equal(t, "y", snap.Elements["e3"].Name)
}

func TestBuild_SkipsNodesWithoutSelector(t *testing.T) {
	snap := Build(&entity.AXTree{Nodes: []entity.AXNode{{Role: "button", Name: "ghost", Interactable: true}}}, 5)

	assert.Empty(t, snap.Order)
}

func TestBuild_PartialIsDegraded(t *testing.T) {
	snap := Build(&entity.AXTree{Nodes: []entity.AXNode{node("a", true)}, Partial: true}, 5)

	assert.True(t, snap.Degraded)
	assert.NotEmpty(t, snap.Reason)
	assert.Len(t, snap.Order, 1)
}

func TestCapture_DegradedOnError(t *testing.T) {
	page := testutil.NewFakePage("https://example.com/x")
	page.TreeErr = errors.New("detached frame")

	snap := New(0, testutil.NopLogger{}).Capture(context.Background(), page)

	assert.True(t, snap.Degraded)
	assert.Equal(t, "detached frame", snap.Reason)
	assert.Equal(t, "https://example.com/x", snap.URL)
	assert.Empty(t, snap.Elements)
}

func TestCapture_IsReadOnly(t *testing.T) {
	page := testutil.NewFakePage("https://example.com")
	page.Tree = &entity.AXTree{URL: "https://example.com", Nodes: []entity.AXNode{node("a", true)}}

	snap := New(150, testutil.NopLogger{}).Capture(context.Background(), page)

	assert.Len(t, snap.Order, 1)
	assert.Equal(t, []string{"tree"}, page.Calls())
}

func TestResolveTargets(t *testing.T) {
	snap := Build(&entity.AXTree{Nodes: []entity.AXNode{node("a", true), node("b", true)}}, 5)

	got := snap.ResolveTargets([]string{"e2", "//raw", "e2", "", "e9"})

	assert.Equal(t, []string{"#b", "//raw", "e9"}, got)
}
