package search

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"globalroute/internal/graph"
)

// Heuristic holds the per-location estimate of remaining cost to one goal,
// indexed like the graph's locations.
type Heuristic []float64

// NewHeuristic estimates, for every location, the cost of reaching goal:
// great-circle distance turned into an optimistic time (fastest mode) and an
// optimistic price (cheapest mode), each rescaled with the graph's edge
// normalization and blended by the weights. Estimates are clamped at zero and
// the goal itself scores zero.
//
// The estimate only orders exploration; it is not guaranteed admissible
// because the rescaling uses edge-derived bounds.
func NewHeuristic(g *graph.Graph, goal int32, timeWeight, priceWeight float64, bench graph.Benchmarks) Heuristic {
	h := make(Heuristic, g.Len())
	norm := g.Norm()
	speed := bench.FastestSpeed()
	rate := bench.CheapestRate()
	gl := g.At(goal)
	gp := orb.Point{gl.Longitude, gl.Latitude}
	for i := range h {
		if int32(i) == goal {
			continue
		}
		l := g.At(int32(i))
		km := geo.DistanceHaversine(orb.Point{l.Longitude, l.Latitude}, gp) / 1000
		var t float64
		if speed > 0 {
			t = km / speed
		}
		v := timeWeight*norm.TimeNorm(t) + priceWeight*norm.PriceNorm(km*rate)
		h[i] = math.Max(0, v)
	}
	return h
}

type heuristicKey struct {
	goal        int32
	timeWeight  float64
	priceWeight float64
}
