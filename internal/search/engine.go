// Package search implements the multi-criteria top-N route search.
//
// The engine runs a best-first search keyed by f = g + h over the shared
// graph and keeps collecting completions at the goal until the N best are
// settled. Each query owns its queue, arena and settled set; the graph is the
// only shared state.
package search

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"globalroute/internal/graph"
)

// DefaultTopN is used when a query does not ask for a positive count.
const DefaultTopN = 3

// Query is one route search request.
type Query struct {
	Start       string
	Goal        string
	Avoid       []string // hard-excluded country codes
	Penalty     []string // country codes that cost an extra unit to enter
	TopN        int
	TimeWeight  float64
	PriceWeight float64
	Modes       graph.ModeSet // zero means all modes
}

// Candidate is a completed path, ordered from start to goal.
type Candidate struct {
	Nodes []graph.Location
	Links []graph.Link
	Cost  float64
}

// IDs returns the location ids along the path.
func (c Candidate) IDs() []string {
	out := make([]string, len(c.Nodes))
	for i, n := range c.Nodes {
		out[i] = n.ID
	}
	return out
}

// Stats describes the work done by one search.
type Stats struct {
	Popped      int
	Expanded    int
	Pushed      int
	Completions int
	Duration    time.Duration
	LimitHit    bool
}

// Observer receives per-search statistics, typically for metrics.
type Observer interface {
	ObserveSearch(st Stats, err error)
}

// Options tunes an Engine.
type Options struct {
	Benchmarks graph.Benchmarks
	// MaxExpansions caps settled expansions per query; 0 disables the cap.
	MaxExpansions int
	// HeuristicCacheSize bounds the (goal, weights) memo; 0 disables it.
	HeuristicCacheSize int
	Observer           Observer
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Benchmarks:         graph.DefaultBenchmarks(),
		MaxExpansions:      1_000_000,
		HeuristicCacheSize: 256,
	}
}

// Engine answers route queries against one immutable graph. It is safe for
// concurrent use.
type Engine struct {
	g     *graph.Graph
	opts  Options
	log   *zap.Logger
	cache *lru.Cache[heuristicKey, Heuristic]
}

// NewEngine wires an engine to its graph.
func NewEngine(g *graph.Graph, opts Options, log *zap.Logger) (*Engine, error) {
	if g == nil {
		return nil, errors.New("search: nil graph")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Benchmarks.Modes == nil {
		opts.Benchmarks = graph.DefaultBenchmarks()
	}
	e := &Engine{g: g, opts: opts, log: log}
	if opts.HeuristicCacheSize > 0 {
		c, err := lru.New[heuristicKey, Heuristic](opts.HeuristicCacheSize)
		if err != nil {
			return nil, fmt.Errorf("heuristic cache: %w", err)
		}
		e.cache = c
	}
	return e, nil
}

// Graph returns the graph the engine searches.
func (e *Engine) Graph() *graph.Graph { return e.g }

func (e *Engine) heuristic(goal int32, tw, pw float64) Heuristic {
	if e.cache == nil {
		return NewHeuristic(e.g, goal, tw, pw, e.opts.Benchmarks)
	}
	k := heuristicKey{goal: goal, timeWeight: tw, priceWeight: pw}
	if h, ok := e.cache.Get(k); ok {
		return h
	}
	h := NewHeuristic(e.g, goal, tw, pw, e.opts.Benchmarks)
	e.cache.Add(k, h)
	return h
}

// Search returns up to q.TopN candidates sorted by ascending cost.
func (e *Engine) Search(ctx context.Context, q Query) (out []Candidate, err error) {
	ctx, span := otel.Tracer("globalroute/search").Start(ctx, "search.Search")
	span.SetAttributes(
		attribute.String("route.start", q.Start),
		attribute.String("route.goal", q.Goal),
		attribute.Int("route.top_n", q.TopN),
	)
	var st Stats
	began := time.Now()
	defer func() {
		st.Duration = time.Since(began)
		span.SetAttributes(
			attribute.Int("search.expanded", st.Expanded),
			attribute.Int("search.completions", st.Completions),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if e.opts.Observer != nil {
			e.opts.Observer.ObserveSearch(st, err)
		}
		e.log.Debug("search finished",
			zap.String("start", q.Start),
			zap.String("goal", q.Goal),
			zap.Int("expanded", st.Expanded),
			zap.Int("pushed", st.Pushed),
			zap.Int("completions", st.Completions),
			zap.Duration("took", st.Duration),
			zap.Error(err),
		)
	}()

	if q.TopN <= 0 {
		q.TopN = DefaultTopN
	}
	if q.Modes == 0 {
		q.Modes = graph.AllModes
	}
	if bad(q.TimeWeight) || bad(q.PriceWeight) {
		return nil, fmt.Errorf("%w: weights must be finite and non-negative", ErrInvalidQuery)
	}

	start, ok := e.g.Index(q.Start)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, q.Start)
	}
	goal, ok := e.g.Index(q.Goal)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, q.Goal)
	}
	avoid := countrySet(q.Avoid)
	penalty := countrySet(q.Penalty)
	if _, banned := avoid[e.g.At(start).Country]; banned {
		return nil, fmt.Errorf("%w: start (%s) or goal (%s)", ErrBannedEndpoint, q.Start, q.Goal)
	}
	if _, banned := avoid[e.g.At(goal).Country]; banned {
		return nil, fmt.Errorf("%w: start (%s) or goal (%s)", ErrBannedEndpoint, q.Start, q.Goal)
	}

	r := &run{
		g:       e.g,
		q:       q,
		h:       e.heuristic(goal, q.TimeWeight, q.PriceWeight),
		goal:    goal,
		avoid:   avoid,
		penalty: penalty,
		settled: make([]bool, e.g.Len()),
		maxExp:  e.opts.MaxExpansions,
		st:      &st,
	}
	if err := r.loop(ctx, start); err != nil {
		return nil, err
	}
	if len(r.done) == 0 {
		if st.LimitHit {
			return nil, fmt.Errorf("%w: between %s and %s", ErrSearchLimit, q.Start, q.Goal)
		}
		return nil, fmt.Errorf("%w: between %s and %s", ErrNoPathFound, q.Start, q.Goal)
	}
	n := min(q.TopN, len(r.done))
	out = make([]Candidate, 0, n)
	for _, c := range r.done[:n] {
		out = append(out, r.candidate(c))
	}
	return out, nil
}

// run is the mutable state of one search.
type run struct {
	g       *graph.Graph
	q       Query
	h       Heuristic
	goal    int32
	avoid   map[string]struct{}
	penalty map[string]struct{}
	settled []bool
	nodes   arena
	pq      queue
	seq     uint64
	done    []int32 // completed arena nodes, ascending by g, stable
	maxExp  int
	st      *Stats
}

func (r *run) push(n pathNode) {
	idx := int32(len(r.nodes))
	r.nodes = append(r.nodes, n)
	heap.Push(&r.pq, entry{f: n.g + r.h[n.loc], seq: r.seq, node: idx})
	r.seq++
	r.st.Pushed++
}

func (r *run) loop(ctx context.Context, start int32) error {
	r.push(pathNode{parent: -1, loc: start, link: -1})
	for r.pq.Len() > 0 {
		if len(r.done) >= r.q.TopN && r.pq[0].f > r.nodes[r.done[r.q.TopN-1]].g {
			return nil
		}
		if r.st.Popped&1023 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		it := heap.Pop(&r.pq).(entry)
		r.st.Popped++
		cur := r.nodes[it.node]

		if cur.loc == r.goal {
			r.complete(it.node)
			continue
		}
		if r.settled[cur.loc] {
			continue
		}
		if r.maxExp > 0 && r.st.Expanded >= r.maxExp {
			r.st.LimitHit = true
			return nil
		}
		r.settled[cur.loc] = true
		r.st.Expanded++
		r.expand(it.node, cur)
	}
	return nil
}

func (r *run) expand(idx int32, cur pathNode) {
	from := r.g.At(cur.loc)
	for _, a := range r.g.Arcs(cur.loc) {
		l := r.g.LinkAt(a.Link)
		if !r.q.Modes.Has(l.Mode) {
			continue
		}
		if r.nodes.contains(idx, a.To) {
			continue
		}
		to := r.g.At(a.To)
		if _, ok := r.avoid[to.Country]; ok {
			continue
		}
		cost := cur.g + r.q.TimeWeight*l.TimeNorm + r.q.PriceWeight*l.PriceNorm
		if from.Country != to.Country {
			cost++
		}
		if _, ok := r.penalty[to.Country]; ok {
			cost++
		}
		r.push(pathNode{parent: idx, loc: a.To, link: a.Link, depth: cur.depth + 1, g: cost})
	}
}

// complete inserts a goal arrival after any completion of equal cost.
func (r *run) complete(idx int32) {
	g := r.nodes[idx].g
	at := sort.Search(len(r.done), func(i int) bool { return r.nodes[r.done[i]].g > g })
	r.done = append(r.done, 0)
	copy(r.done[at+1:], r.done[at:])
	r.done[at] = idx
	r.st.Completions++
}

func (r *run) candidate(idx int32) Candidate {
	n := r.nodes[idx]
	c := Candidate{
		Nodes: make([]graph.Location, n.depth+1),
		Links: make([]graph.Link, n.depth),
		Cost:  n.g,
	}
	for i := idx; i >= 0; i = r.nodes[i].parent {
		p := r.nodes[i]
		c.Nodes[p.depth] = *r.g.At(p.loc)
		if p.parent >= 0 {
			prev := r.nodes[p.parent].loc
			c.Links[p.depth-1] = r.g.Oriented(prev, graph.Arc{To: p.loc, Link: p.link})
		}
	}
	return c
}

func countrySet(codes []string) map[string]struct{} {
	s := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			s[c] = struct{}{}
		}
	}
	return s
}

func bad(w float64) bool { return w < 0 || math.IsNaN(w) || math.IsInf(w, 0) }
