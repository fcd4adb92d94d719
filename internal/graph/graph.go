// Package graph holds the immutable transport multigraph shared by every search.
//
// A Graph is built once (from a snapshot file, a Postgres source or a Builder)
// and is read-only afterwards, so any number of goroutines may query it
// without locking.
package graph

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ErrNotFound is returned when a location id is not part of the graph.
var ErrNotFound = errors.New("location not found")

// Mode is the transport mode of a link.
type Mode string

const (
	Land Mode = "land"
	Sea  Mode = "sea"
	Air  Mode = "air"
)

// Modes lists every supported mode in a stable order.
var Modes = []Mode{Land, Sea, Air}

// ParseMode validates a mode name (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Land, Sea, Air:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (allowed: land,sea,air)", s)
	}
}

func (m Mode) bit() ModeSet {
	switch m {
	case Land:
		return 1
	case Sea:
		return 2
	case Air:
		return 4
	}
	return 0
}

// ModeSet is a small bitset of allowed modes.
type ModeSet uint8

// AllModes allows land, sea and air.
const AllModes ModeSet = 7

// NewModeSet builds a set from the given modes.
func NewModeSet(modes ...Mode) ModeSet {
	var s ModeSet
	for _, m := range modes {
		s |= m.bit()
	}
	return s
}

// Has reports whether m is in the set.
func (s ModeSet) Has(m Mode) bool { return s&m.bit() != 0 }

// List returns the modes in the set in canonical order.
func (s ModeSet) List() []Mode {
	out := make([]Mode, 0, 3)
	for _, m := range Modes {
		if s.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

// Location is a graph node.
type Location struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country_code"`
}

// Link is an undirected multigraph edge. Key distinguishes parallel links
// between the same pair of locations.
type Link struct {
	Key       int     `json:"key"`
	From      string  `json:"source"`
	To        string  `json:"target"`
	Mode      Mode    `json:"mode"`
	Distance  float64 `json:"distance"`
	Time      float64 `json:"time"`
	Price     float64 `json:"price"`
	TimeNorm  float64 `json:"time_norm"`
	PriceNorm float64 `json:"price_norm"`
}

// Norm holds the global rescaling constants baked into every link's
// TimeNorm/PriceNorm. The heuristic must use the same values.
type Norm struct {
	TimeMin  float64 `json:"time_min"`
	TimeMax  float64 `json:"time_max"`
	PriceMin float64 `json:"price_min"`
	PriceMax float64 `json:"price_max"`
	Scale    float64 `json:"scale"`
}

// DefaultScale is the upper bound of the normalized range.
const DefaultScale = 100

// TimeNorm rescales an absolute time onto [0, Scale].
func (n Norm) TimeNorm(t float64) float64 { return rescale(t, n.TimeMin, n.TimeMax, n.scale()) }

// PriceNorm rescales an absolute price onto [0, Scale].
func (n Norm) PriceNorm(p float64) float64 { return rescale(p, n.PriceMin, n.PriceMax, n.scale()) }

func (n Norm) scale() float64 {
	if n.Scale <= 0 {
		return DefaultScale
	}
	return n.Scale
}

// IsZero reports whether no normalization has been computed.
func (n Norm) IsZero() bool { return n.TimeMax == n.TimeMin && n.PriceMax == n.PriceMin }

func rescale(v, lo, hi, scale float64) float64 {
	if hi <= lo {
		return 0
	}
	return (v - lo) / (hi - lo) * scale
}

// Neighbor is one traversal option out of a location.
type Neighbor struct {
	ID   string
	Key  int
	Link Link
}

// Arc is the index-based form of Neighbor used by the search engine.
type Arc struct {
	To   int32
	Link int32
}

// Graph is the immutable multigraph.
type Graph struct {
	locs  []Location
	index map[string]int32
	links []Link
	adj   [][]Arc
	norm  Norm
}

// Len returns the number of locations.
func (g *Graph) Len() int { return len(g.locs) }

// LinkCount returns the number of links.
func (g *Graph) LinkCount() int { return len(g.links) }

// Norm returns the normalization constants of the snapshot.
func (g *Graph) Norm() Norm { return g.norm }

// Attributes returns a location by id.
func (g *Graph) Attributes(id string) (Location, error) {
	i, ok := g.index[id]
	if !ok {
		return Location{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return g.locs[i], nil
}

// Neighbors yields every link incident to id, oriented away from id.
func (g *Graph) Neighbors(id string) (iter.Seq[Neighbor], error) {
	i, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return func(yield func(Neighbor) bool) {
		for _, a := range g.adj[i] {
			l := g.oriented(i, a)
			if !yield(Neighbor{ID: g.locs[a.To].ID, Key: l.Key, Link: l}) {
				return
			}
		}
	}, nil
}

// Index resolves a location id to its dense index.
func (g *Graph) Index(id string) (int32, bool) {
	i, ok := g.index[id]
	return i, ok
}

// At returns the location stored at index i.
func (g *Graph) At(i int32) *Location { return &g.locs[i] }

// Arcs returns the adjacency of index i. Callers must not modify the slice.
func (g *Graph) Arcs(i int32) []Arc { return g.adj[i] }

// LinkAt returns the link stored at index i.
func (g *Graph) LinkAt(i int32) *Link { return &g.links[i] }

// Oriented returns a copy of the arc's link with From set to the location at
// index from.
func (g *Graph) Oriented(from int32, a Arc) Link { return g.oriented(from, a) }

func (g *Graph) oriented(from int32, a Arc) Link {
	l := g.links[a.Link]
	if l.From != g.locs[from].ID {
		l.From, l.To = l.To, l.From
	}
	return l
}

// Locations returns a copy of every location in insertion order.
func (g *Graph) Locations() []Location { return append([]Location(nil), g.locs...) }

// Links returns a copy of every link in insertion order.
func (g *Graph) Links() []Link { return append([]Link(nil), g.links...) }
