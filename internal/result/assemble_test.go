package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globalroute/internal/graph"
	"globalroute/internal/search"
)

func TestPathSums(t *testing.T) {
	c := search.Candidate{
		Nodes: []graph.Location{
			{ID: "A", Latitude: 1, Longitude: 2},
			{ID: "C", Latitude: 3, Longitude: 4},
			{ID: "D", Latitude: 5, Longitude: 6},
		},
		Links: []graph.Link{
			{From: "A", To: "C", Mode: graph.Sea, Distance: 300, Time: 9, Price: 40},
			{From: "C", To: "D", Mode: graph.Land, Distance: 200, Time: 3.5, Price: 60},
		},
		Cost: 12,
	}
	r := Path(c)
	assert.Equal(t, []string{"A", "C", "D"}, r.Path)
	require.Len(t, r.Coordinates, 3)
	assert.Equal(t, 3.0, r.Coordinates[1].Latitude)
	assert.Equal(t, 6.0, r.Coordinates[2].Longitude)
	require.Len(t, r.Edges, 2)
	assert.Equal(t, "sea", r.Edges[0].Mode)
	assert.Equal(t, 12.5, r.TimeSum)
	assert.Equal(t, 100.0, r.PriceSum)
	assert.Equal(t, 500.0, r.DistanceSum)
	assert.InDelta(t, 300*0.01+200*0.1, r.CO2Sum, 1e-9)
}

func TestAssembleKeepsOrder(t *testing.T) {
	cands := []search.Candidate{
		{Nodes: []graph.Location{{ID: "x"}}},
		{Nodes: []graph.Location{{ID: "y"}, {ID: "z"}}, Links: []graph.Link{{From: "y", To: "z", Mode: graph.Air, Distance: 10}}},
	}
	out := Assemble(cands)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"x"}, out[0].Path)
	assert.Empty(t, out[0].Edges)
	assert.InDelta(t, 7.0, out[1].CO2Sum, 1e-9)
}

func TestEmissionFactors(t *testing.T) {
	assert.Equal(t, 0.01, EmissionFactors[graph.Sea])
	assert.Equal(t, 0.1, EmissionFactors[graph.Land])
	assert.Equal(t, 0.7, EmissionFactors[graph.Air])
}
