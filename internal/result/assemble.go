// Package result turns search candidates into API path summaries.
package result

import (
	"globalroute/internal/graph"
	"globalroute/internal/model"
	"globalroute/internal/search"
)

// EmissionFactors are CO2 units per distance unit for each mode.
var EmissionFactors = map[graph.Mode]float64{
	graph.Sea:  0.01,
	graph.Land: 0.1,
	graph.Air:  0.7,
}

// Emission returns the CO2 of travelling km with mode m.
func Emission(m graph.Mode, km float64) float64 { return km * EmissionFactors[m] }

// Assemble converts ranked candidates, keeping their order.
func Assemble(cands []search.Candidate) []model.PathResult {
	out := make([]model.PathResult, 0, len(cands))
	for _, c := range cands {
		out = append(out, Path(c))
	}
	return out
}

// Path summarizes one candidate.
func Path(c search.Candidate) model.PathResult {
	r := model.PathResult{
		Path:        make([]string, 0, len(c.Nodes)),
		Coordinates: make([]model.Coordinate, 0, len(c.Nodes)),
		Edges:       make([]model.Edge, 0, len(c.Links)),
	}
	for _, n := range c.Nodes {
		r.Path = append(r.Path, n.ID)
		r.Coordinates = append(r.Coordinates, model.Coordinate{Node: n.ID, Latitude: n.Latitude, Longitude: n.Longitude})
	}
	for _, l := range c.Links {
		r.Edges = append(r.Edges, model.Edge{
			From:     l.From,
			To:       l.To,
			Mode:     string(l.Mode),
			Time:     l.Time,
			Price:    l.Price,
			Distance: l.Distance,
		})
		r.TimeSum += l.Time
		r.PriceSum += l.Price
		r.DistanceSum += l.Distance
		r.CO2Sum += Emission(l.Mode, l.Distance)
	}
	return r
}
