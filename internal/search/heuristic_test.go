package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globalroute/internal/graph"
)

func TestHeuristicGoalIsZeroAndNonNegative(t *testing.T) {
	g := randomGraph(t, 3, 30)
	goal, ok := g.Index("n12")
	require.True(t, ok)

	h := NewHeuristic(g, goal, 0.4, 0.6, graph.DefaultBenchmarks())
	require.Len(t, h, g.Len())
	assert.Zero(t, h[goal])
	for i, v := range h {
		assert.GreaterOrEqual(t, v, 0.0, "location %d", i)
	}
}

func TestHeuristicGrowsWithDistance(t *testing.T) {
	g := prepared(t,
		[]node{
			{id: "goal", lat: 0, lon: 0},
			{id: "near", lat: 0, lon: 20},
			{id: "far", lat: 0, lon: 120},
		},
		[]link{
			{"goal", "near", graph.Land, 100},
			{"near", "far", graph.Air, 12000},
		},
	)
	goal, _ := g.Index("goal")
	near, _ := g.Index("near")
	far, _ := g.Index("far")

	h := NewHeuristic(g, goal, 0.5, 0.5, graph.DefaultBenchmarks())
	assert.Greater(t, h[far], h[near])
}

func TestHeuristicIsMemoizedPerGoalAndWeights(t *testing.T) {
	e := newEngine(t, prepared(t, diamondNodes, diamondLinks))
	goal, _ := e.Graph().Index("D")

	a := e.heuristic(goal, 0.5, 0.5)
	b := e.heuristic(goal, 0.5, 0.5)
	c := e.heuristic(goal, 0.2, 0.8)
	assert.Same(t, &a[0], &b[0])
	assert.NotSame(t, &a[0], &c[0])
	assert.Equal(t, 2, e.cache.Len())
}

// Near the goal the optimistic estimate undercuts the cheapest link, so the
// rescaled value would be negative; it is clamped so equal-g paths keep
// insertion order instead of favouring the location nearest the goal.
func TestHeuristicClampKeepsInsertionOrderNearGoal(t *testing.T) {
	g := prepared(t,
		[]node{
			{id: "G", lat: 0, lon: 0},
			{id: "X", lat: 0, lon: 0.05},
			{id: "Y", lat: 0, lon: 0.01},
			{id: "S", lat: 0, lon: 1},
		},
		[]link{
			{"S", "X", graph.Land, 150},
			{"S", "Y", graph.Land, 150},
			{"X", "G", graph.Land, 10},
			{"Y", "G", graph.Land, 10},
		},
	)
	goal, _ := g.Index("G")
	x, _ := g.Index("X")
	y, _ := g.Index("Y")
	bench := graph.DefaultBenchmarks()
	norm := g.Norm()
	raw := func(km float64) float64 {
		return 0.5*norm.TimeNorm(km/bench.FastestSpeed()) + 0.5*norm.PriceNorm(km*bench.CheapestRate())
	}
	require.Negative(t, raw(5.5))
	require.Less(t, raw(1.1), raw(5.5))

	h := NewHeuristic(g, goal, 0.5, 0.5, bench)
	assert.Zero(t, h[x])
	assert.Zero(t, h[y])

	got, err := newEngine(t, g).Search(context.Background(), Query{Start: "S", Goal: "G", TopN: 1, TimeWeight: 0.5, PriceWeight: 0.5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"S", "X", "G"}, got[0].IDs())
}
