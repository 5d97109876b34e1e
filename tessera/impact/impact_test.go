// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package impact_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tessera.io/tessera/tessera/impact"
	"tessera.io/tessera/tessera/registry"
)

// fakeDependencies serves a static edge list; unused methods panic via
// the embedded nil interface.
type fakeDependencies struct {
	registry.Dependencies
	edges map[uuid.UUID][]registry.DownstreamEdge
	calls int
}

func (f *fakeDependencies) ListDownstream(ctx context.Context, frontier []uuid.UUID) ([]registry.DownstreamEdge, error) {
	f.calls++
	var out []registry.DownstreamEdge
	for _, id := range frontier {
		out = append(out, f.edges[id]...)
	}
	return out, nil
}

func edge(from, to uuid.UUID) registry.DownstreamEdge {
	return registry.DownstreamEdge{
		Asset:             registry.Asset{ID: to, OwnerTeamID: uuid.New()},
		DependencyAssetID: from,
		DependencyType:    registry.DependencyConsumes,
	}
}

func TestTraverseLinearChain(t *testing.T) {
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	deps := &fakeDependencies{edges: map[uuid.UUID][]registry.DownstreamEdge{
		a: {edge(a, b)},
		b: {edge(b, c)},
	}}
	svc := impact.NewServiceWith(zaptest.NewLogger(t), deps, nil, nil, nil)

	results, truncated, err := svc.Traverse(ctx, a, 10, 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, results, 2)
	assert.Equal(t, b, results[0].Asset.ID)
	assert.Equal(t, 1, results[0].Depth)
	assert.Equal(t, c, results[1].Asset.ID)
	assert.Equal(t, 2, results[1].Depth)
}

func TestTraverseCycleTerminates(t *testing.T) {
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	deps := &fakeDependencies{edges: map[uuid.UUID][]registry.DownstreamEdge{
		a: {edge(a, b)},
		b: {edge(b, a)},
	}}
	svc := impact.NewServiceWith(zaptest.NewLogger(t), deps, nil, nil, nil)

	results, truncated, err := svc.Traverse(ctx, a, 50, 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	// The root never appears in its own downstream list.
	require.Len(t, results, 1)
	assert.Equal(t, b, results[0].Asset.ID)
}

func TestTraverseThreeNodeCycle(t *testing.T) {
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	deps := &fakeDependencies{edges: map[uuid.UUID][]registry.DownstreamEdge{
		a: {edge(a, b)},
		b: {edge(b, c)},
		c: {edge(c, a)},
	}}
	svc := impact.NewServiceWith(zaptest.NewLogger(t), deps, nil, nil, nil)

	results, _, err := svc.Traverse(ctx, a, 50, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	seen := map[uuid.UUID]int{}
	for _, r := range results {
		seen[r.Asset.ID]++
	}
	assert.Equal(t, 1, seen[b], "each asset visited at most once")
	assert.Equal(t, 1, seen[c])
	assert.Zero(t, seen[a])
}

func TestTraverseMaxDepth(t *testing.T) {
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	deps := &fakeDependencies{edges: map[uuid.UUID][]registry.DownstreamEdge{
		a: {edge(a, b)},
		b: {edge(b, c)},
	}}
	svc := impact.NewServiceWith(zaptest.NewLogger(t), deps, nil, nil, nil)

	results, truncated, err := svc.Traverse(ctx, a, 1, 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, results, 1)
	assert.Equal(t, b, results[0].Asset.ID)
}

func TestTraverseMaxResultsTruncates(t *testing.T) {
	ctx := context.Background()
	root := uuid.New()
	var fanout []registry.DownstreamEdge
	for i := 0; i < 10; i++ {
		fanout = append(fanout, edge(root, uuid.New()))
	}
	deps := &fakeDependencies{edges: map[uuid.UUID][]registry.DownstreamEdge{root: fanout}}
	svc := impact.NewServiceWith(zaptest.NewLogger(t), deps, nil, nil, nil)

	results, truncated, err := svc.Traverse(ctx, root, 10, 3)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, results, 3)
}

func TestTraverseOneQueryPerLevel(t *testing.T) {
	ctx := context.Background()
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	deps := &fakeDependencies{edges: map[uuid.UUID][]registry.DownstreamEdge{
		a: {edge(a, b), edge(a, c)},
		b: {edge(b, d)},
	}}
	svc := impact.NewServiceWith(zaptest.NewLogger(t), deps, nil, nil, nil)

	_, _, err := svc.Traverse(ctx, a, 10, 0)
	require.NoError(t, err)
	// Levels: {a}, {b,c}, {d}. The empty frontier after d stops the loop.
	assert.LessOrEqual(t, deps.calls, 3)
}
