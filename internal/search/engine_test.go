package search

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globalroute/internal/graph"
)

type node struct {
	id, country string
	lat, lon    float64
}

type link struct {
	from, to string
	mode     graph.Mode
	km       float64
}

// prepared builds a graph whose times, prices and norms come from the
// default benchmarks.
func prepared(t *testing.T, nodes []node, links []link) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	for _, n := range nodes {
		require.NoError(t, b.AddLocation(graph.Location{ID: n.id, Country: n.country, Latitude: n.lat, Longitude: n.lon}))
	}
	for _, l := range links {
		_, err := b.AddLink(graph.Link{From: l.from, To: l.to, Mode: l.mode, Distance: l.km})
		require.NoError(t, err)
	}
	b.Prepare(graph.DefaultBenchmarks(), graph.DefaultScale)
	return b.Build()
}

func newEngine(t *testing.T, g *graph.Graph) *Engine {
	t.Helper()
	e, err := NewEngine(g, DefaultOptions(), nil)
	require.NoError(t, err)
	return e
}

var diamondNodes = []node{
	{id: "A", country: "FR", lat: 48.85, lon: 2.35},
	{id: "B", country: "FR", lat: 45.76, lon: 4.83},
	{id: "C", country: "FR", lat: 43.30, lon: 5.37},
	{id: "D", country: "DE", lat: 48.14, lon: 11.58},
}

var diamondLinks = []link{
	{"A", "B", graph.Land, 100},
	{"B", "D", graph.Air, 500},
	{"A", "C", graph.Sea, 300},
	{"C", "D", graph.Land, 200},
}

// recost recomputes a candidate's cost from its links and countries.
func recost(c Candidate, q Query) float64 {
	pen := countrySet(q.Penalty)
	cost := 0.0
	for i, l := range c.Links {
		cost += q.TimeWeight*l.TimeNorm + q.PriceWeight*l.PriceNorm
		if c.Nodes[i].Country != c.Nodes[i+1].Country {
			cost++
		}
		if _, ok := pen[c.Nodes[i+1].Country]; ok {
			cost++
		}
	}
	return cost
}

func TestDiamondReturnsBothRankedPaths(t *testing.T) {
	e := newEngine(t, prepared(t, diamondNodes, diamondLinks))
	q := Query{Start: "A", Goal: "D", TopN: 2, TimeWeight: 0.5, PriceWeight: 0.5}

	got, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// The cheap land hop plus the fast air leg beats the slow sea leg with the
	// default benchmarks.
	assert.Equal(t, []string{"A", "B", "D"}, got[0].IDs())
	assert.Equal(t, []string{"A", "C", "D"}, got[1].IDs())
	assert.Less(t, got[0].Cost, got[1].Cost)
	for _, c := range got {
		assert.InDelta(t, recost(c, q), c.Cost, 1e-9)
		assert.Equal(t, "A", c.Links[0].From)
		assert.Equal(t, "D", c.Links[len(c.Links)-1].To)
	}
}

func TestSeaLandBeatsAirWhenNormalizedCheaper(t *testing.T) {
	s := &graph.Snapshot{
		Norm: graph.Norm{TimeMin: 1, TimeMax: 10, PriceMin: 10, PriceMax: 100, Scale: 100},
		Nodes: []graph.Location{
			{ID: "A", Country: "IN", Latitude: 19.07, Longitude: 72.87},
			{ID: "B", Country: "IN", Latitude: 19.20, Longitude: 72.97},
			{ID: "C", Country: "IN", Latitude: 18.95, Longitude: 72.80},
			{ID: "D", Country: "IN", Latitude: 19.30, Longitude: 73.00},
		},
		Links: []graph.Link{
			{From: "A", To: "B", Mode: graph.Land, Distance: 100, TimeNorm: 5, PriceNorm: 5},
			{From: "B", To: "D", Mode: graph.Air, Distance: 500, TimeNorm: 10, PriceNorm: 90},
			{From: "A", To: "C", Mode: graph.Sea, Distance: 300, TimeNorm: 30, PriceNorm: 2},
			{From: "C", To: "D", Mode: graph.Land, Distance: 200, TimeNorm: 8, PriceNorm: 6},
		},
	}
	g, err := graph.FromSnapshot(s)
	require.NoError(t, err)
	e := newEngine(t, g)

	got, err := e.Search(context.Background(), Query{Start: "A", Goal: "D", TopN: 2, TimeWeight: 0.5, PriceWeight: 0.5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"A", "C", "D"}, got[0].IDs())
	assert.InDelta(t, 23.0, got[0].Cost, 1e-9)
	assert.Equal(t, []string{"A", "B", "D"}, got[1].IDs())
	assert.InDelta(t, 55.0, got[1].Cost, 1e-9)
}

func TestBannedEndpoint(t *testing.T) {
	e := newEngine(t, prepared(t, diamondNodes, diamondLinks))
	_, err := e.Search(context.Background(), Query{Start: "A", Goal: "D", Avoid: []string{"de"}, TimeWeight: 0.5, PriceWeight: 0.5})
	assert.True(t, errors.Is(err, ErrBannedEndpoint), "got %v", err)

	_, err = e.Search(context.Background(), Query{Start: "A", Goal: "D", Avoid: []string{"FR"}, TimeWeight: 0.5, PriceWeight: 0.5})
	assert.True(t, errors.Is(err, ErrBannedEndpoint), "got %v", err)
}

func TestUnknownEndpoint(t *testing.T) {
	e := newEngine(t, prepared(t, diamondNodes, diamondLinks))
	_, err := e.Search(context.Background(), Query{Start: "A", Goal: "Z"})
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = e.Search(context.Background(), Query{Start: "Z", Goal: "A"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLandOnlyOverAirLinkFindsNothing(t *testing.T) {
	g := prepared(t,
		[]node{{id: "X", country: "US"}, {id: "Y", country: "JP", lat: 35, lon: 139}},
		[]link{{"X", "Y", graph.Air, 9000}},
	)
	e := newEngine(t, g)
	_, err := e.Search(context.Background(), Query{Start: "X", Goal: "Y", TimeWeight: 0.5, PriceWeight: 0.5, Modes: graph.NewModeSet(graph.Land)})
	assert.True(t, errors.Is(err, ErrNoPathFound), "got %v", err)
	assert.True(t, IsDomain(err))
}

func TestAvoidedIntermediateIsSkipped(t *testing.T) {
	nodes := append([]node(nil), diamondNodes...)
	nodes[1].country = "CH"
	e := newEngine(t, prepared(t, nodes, diamondLinks))
	got, err := e.Search(context.Background(), Query{Start: "A", Goal: "D", TopN: 3, Avoid: []string{"CH"}, TimeWeight: 0.5, PriceWeight: 0.5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"A", "C", "D"}, got[0].IDs())
}

func TestPenaltyAndBorderCosts(t *testing.T) {
	g := prepared(t, diamondNodes, diamondLinks)
	e := newEngine(t, g)
	base := Query{Start: "A", Goal: "D", TopN: 2, TimeWeight: 0.5, PriceWeight: 0.5}
	plain, err := e.Search(context.Background(), base)
	require.NoError(t, err)

	pen := base
	pen.Penalty = []string{"DE"}
	withPen, err := e.Search(context.Background(), pen)
	require.NoError(t, err)
	require.Len(t, withPen, 2)
	for i := range plain {
		assert.InDelta(t, plain[i].Cost+1, withPen[i].Cost, 1e-9)
	}

	// A->B stays in FR, B->D crosses into DE: one border unit on the path.
	noBorder := 0.0
	for _, l := range plain[0].Links {
		noBorder += 0.5*l.TimeNorm + 0.5*l.PriceNorm
	}
	assert.InDelta(t, noBorder+1, plain[0].Cost, 1e-9)
}

func TestEqualCostTiesKeepInsertionOrder(t *testing.T) {
	s := &graph.Snapshot{
		Norm:  graph.Norm{TimeMin: 0, TimeMax: 1, PriceMin: 0, PriceMax: 1, Scale: 100},
		Nodes: []graph.Location{{ID: "P"}, {ID: "Q", Latitude: 0.1}},
		Links: []graph.Link{
			{From: "P", To: "Q", Mode: graph.Land, TimeNorm: 4, PriceNorm: 4},
			{From: "P", To: "Q", Mode: graph.Sea, TimeNorm: 4, PriceNorm: 4},
		},
	}
	g, err := graph.FromSnapshot(s)
	require.NoError(t, err)
	e := newEngine(t, g)
	got, err := e.Search(context.Background(), Query{Start: "P", Goal: "Q", TopN: 2, TimeWeight: 0.5, PriceWeight: 0.5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, graph.Land, got[0].Links[0].Mode)
	assert.Equal(t, graph.Sea, got[1].Links[0].Mode)
	assert.Equal(t, 1, got[1].Links[0].Key)
}

func TestSettledNodesLimitDiversityToFinalApproach(t *testing.T) {
	// Two prefixes reach Y (via X and via Z) but Y is expanded only once, so
	// every completion goes through the same prefix. The two parallel Y-G
	// links provide the only variety.
	g := prepared(t,
		[]node{
			{id: "S", country: "BR", lat: -23.5, lon: -46.6},
			{id: "X", country: "BR", lat: -22.9, lon: -43.2},
			{id: "Z", country: "BR", lat: -25.4, lon: -49.3},
			{id: "Y", country: "BR", lat: -19.9, lon: -43.9},
			{id: "G", country: "BR", lat: -15.8, lon: -47.9},
		},
		[]link{
			{"S", "X", graph.Land, 400},
			{"S", "Z", graph.Land, 350},
			{"X", "Y", graph.Land, 450},
			{"Z", "Y", graph.Land, 900},
			{"Y", "G", graph.Land, 700},
			{"Y", "G", graph.Air, 700},
		},
	)
	e := newEngine(t, g)
	got, err := e.Search(context.Background(), Query{Start: "S", Goal: "G", TopN: 5, TimeWeight: 0.5, PriceWeight: 0.5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, got[0].IDs()[:3], got[1].IDs()[:3])
	assert.NotEqual(t, got[0].Links[2].Mode, got[1].Links[2].Mode)
}

func TestStartEqualsGoal(t *testing.T) {
	e := newEngine(t, prepared(t, diamondNodes, diamondLinks))
	got, err := e.Search(context.Background(), Query{Start: "A", Goal: "A", TopN: 3, TimeWeight: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"A"}, got[0].IDs())
	assert.Empty(t, got[0].Links)
	assert.Zero(t, got[0].Cost)
}

func TestExpansionLimit(t *testing.T) {
	g := prepared(t, diamondNodes, diamondLinks)
	opts := DefaultOptions()
	opts.MaxExpansions = 1
	e, err := NewEngine(g, opts, nil)
	require.NoError(t, err)
	_, err = e.Search(context.Background(), Query{Start: "A", Goal: "D", TimeWeight: 0.5, PriceWeight: 0.5})
	assert.True(t, errors.Is(err, ErrSearchLimit), "got %v", err)
}

func TestCanceledContext(t *testing.T) {
	e := newEngine(t, prepared(t, diamondNodes, diamondLinks))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Search(ctx, Query{Start: "A", Goal: "D", TimeWeight: 0.5, PriceWeight: 0.5})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInvalidWeights(t *testing.T) {
	e := newEngine(t, prepared(t, diamondNodes, diamondLinks))
	_, err := e.Search(context.Background(), Query{Start: "A", Goal: "D", TimeWeight: -1, PriceWeight: 2})
	assert.True(t, errors.Is(err, ErrInvalidQuery))
}

type recordingObserver struct {
	mu    sync.Mutex
	stats []Stats
}

func (o *recordingObserver) ObserveSearch(st Stats, _ error) {
	o.mu.Lock()
	o.stats = append(o.stats, st)
	o.mu.Unlock()
}

func TestObserverSeesStats(t *testing.T) {
	obs := &recordingObserver{}
	opts := DefaultOptions()
	opts.Observer = obs
	e, err := NewEngine(prepared(t, diamondNodes, diamondLinks), opts, nil)
	require.NoError(t, err)
	_, err = e.Search(context.Background(), Query{Start: "A", Goal: "D", TopN: 2, TimeWeight: 0.5, PriceWeight: 0.5})
	require.NoError(t, err)
	require.Len(t, obs.stats, 1)
	assert.Equal(t, 2, obs.stats[0].Completions)
	assert.Equal(t, 3, obs.stats[0].Expanded)
}

// randomGraph builds a connected-ish multigraph over a handful of countries.
func randomGraph(t *testing.T, seed int64, n int) *graph.Graph {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	countries := []string{"US", "CA", "MX", "GB", "FR"}
	nodes := make([]node, n)
	for i := range nodes {
		nodes[i] = node{
			id:      fmt.Sprintf("n%d", i),
			country: countries[rng.Intn(len(countries))],
			lat:     rng.Float64()*120 - 60,
			lon:     rng.Float64()*340 - 170,
		}
	}
	var links []link
	for i := 1; i < n; i++ {
		links = append(links, link{nodes[rng.Intn(i)].id, nodes[i].id, graph.Modes[rng.Intn(3)], 50 + rng.Float64()*5000})
	}
	for i := 0; i < n*2; i++ {
		a, b := rng.Intn(n), rng.Intn(n)
		if a == b {
			continue
		}
		links = append(links, link{nodes[a].id, nodes[b].id, graph.Modes[rng.Intn(3)], 50 + rng.Float64()*5000})
	}
	return prepared(t, nodes, links)
}

func TestRandomGraphInvariants(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		g := randomGraph(t, seed, 40)
		e := newEngine(t, g)
		q := Query{
			Start:       "n0",
			Goal:        fmt.Sprintf("n%d", 39-int(seed%5)),
			TopN:        4,
			TimeWeight:  0.3,
			PriceWeight: 0.7,
			Avoid:       []string{"MX"},
			Penalty:     []string{"GB"},
			Modes:       graph.NewModeSet(graph.Land, graph.Sea),
		}
		got, err := e.Search(context.Background(), q)
		if err != nil {
			assert.True(t, IsDomain(err), "seed %d: unexpected error %v", seed, err)
			continue
		}
		require.NotEmpty(t, got)
		assert.LessOrEqual(t, len(got), q.TopN)
		for i, c := range got {
			if i > 0 {
				assert.LessOrEqual(t, got[i-1].Cost, c.Cost, "seed %d: not sorted", seed)
			}
			assert.InDelta(t, recost(c, q), c.Cost, 1e-6)
			seen := map[string]bool{}
			for _, n := range c.Nodes {
				assert.False(t, seen[n.ID], "seed %d: repeated node %s", seed, n.ID)
				seen[n.ID] = true
				assert.NotEqual(t, "MX", n.Country)
			}
			for _, l := range c.Links {
				assert.True(t, q.Modes.Has(l.Mode))
			}
		}
	}
}

func TestConcurrentSearchesShareGraph(t *testing.T) {
	g := randomGraph(t, 7, 60)
	e := newEngine(t, g)
	want, wantErr := e.Search(context.Background(), Query{Start: "n0", Goal: "n59", TopN: 3, TimeWeight: 0.5, PriceWeight: 0.5})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.Search(context.Background(), Query{Start: "n0", Goal: "n59", TopN: 3, TimeWeight: 0.5, PriceWeight: 0.5})
			assert.Equal(t, wantErr, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}
