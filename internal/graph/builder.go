package graph

import (
	"fmt"
	"math"
	"strings"
)

// Builder accumulates locations and links and freezes them into a Graph.
// A Builder is not safe for concurrent use.
type Builder struct {
	g    *Graph
	keys map[[2]int32]int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		g:    &Graph{index: map[string]int32{}},
		keys: map[[2]int32]int{},
	}
}

// AddLocation registers a location. Adding an id twice is an error.
// Country codes are stored upper-cased.
func (b *Builder) AddLocation(loc Location) error {
	loc.Country = strings.ToUpper(strings.TrimSpace(loc.Country))
	if loc.ID == "" {
		return fmt.Errorf("location id must not be empty")
	}
	if _, dup := b.g.index[loc.ID]; dup {
		return fmt.Errorf("duplicate location %q", loc.ID)
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("location %q: coordinates out of range (%f,%f)", loc.ID, loc.Latitude, loc.Longitude)
	}
	b.g.index[loc.ID] = int32(len(b.g.locs))
	b.g.locs = append(b.g.locs, loc)
	b.g.adj = append(b.g.adj, nil)
	return nil
}

// AddLink registers a link between two known locations and returns the
// multigraph key assigned to it. Keys count up from 0 per location pair in
// insertion order; any key set on l is ignored.
func (b *Builder) AddLink(l Link) (int, error) {
	from, ok := b.g.index[l.From]
	if !ok {
		return 0, fmt.Errorf("link %s-%s: %w: %s", l.From, l.To, ErrNotFound, l.From)
	}
	to, ok := b.g.index[l.To]
	if !ok {
		return 0, fmt.Errorf("link %s-%s: %w: %s", l.From, l.To, ErrNotFound, l.To)
	}
	m, err := ParseMode(string(l.Mode))
	if err != nil {
		return 0, fmt.Errorf("link %s-%s: %w", l.From, l.To, err)
	}
	l.Mode = m
	for _, v := range []float64{l.Distance, l.Time, l.Price, l.TimeNorm, l.PriceNorm} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("link %s-%s: attributes must be finite and non-negative", l.From, l.To)
		}
	}
	pair := [2]int32{min(from, to), max(from, to)}
	l.Key = b.keys[pair]
	b.keys[pair]++
	idx := int32(len(b.g.links))
	b.g.links = append(b.g.links, l)
	b.g.adj[from] = append(b.g.adj[from], Arc{To: to, Link: idx})
	if to != from {
		b.g.adj[to] = append(b.g.adj[to], Arc{To: from, Link: idx})
	}
	return l.Key, nil
}

// SetNorm records normalization constants already baked into the links.
func (b *Builder) SetNorm(n Norm) { b.g.norm = n }

// Build freezes the graph. The Builder must not be used afterwards.
func (b *Builder) Build() *Graph {
	g := b.g
	b.g = nil
	return g
}
