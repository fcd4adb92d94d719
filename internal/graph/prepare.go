package graph

import "math"

// Benchmark is the reference speed and tariff of a transport mode.
type Benchmark struct {
	SpeedKmh  float64 `yaml:"speed_kmh" json:"speed_kmh"`
	CostPerKm float64 `yaml:"cost_per_km" json:"cost_per_km"`
}

// Benchmarks describes every mode plus the fixed per-leg overheads used when
// link times and prices are derived from distance.
type Benchmarks struct {
	Modes       map[Mode]Benchmark `yaml:"modes" json:"modes"`
	HandlingHrs float64            `yaml:"handling_hours" json:"handling_hours"`
	BaseFee     float64            `yaml:"base_fee" json:"base_fee"`
}

// DefaultBenchmarks returns the reference values used for snapshot
// preparation.
func DefaultBenchmarks() Benchmarks {
	return Benchmarks{
		Modes: map[Mode]Benchmark{
			Air:  {SpeedKmh: 800, CostPerKm: 0.5},
			Sea:  {SpeedKmh: 35, CostPerKm: 0.1},
			Land: {SpeedKmh: 70, CostPerKm: 0.25},
		},
		HandlingHrs: 0.5,
		BaseFee:     10,
	}
}

// FastestSpeed is the highest benchmark speed over all modes.
func (b Benchmarks) FastestSpeed() float64 {
	best := 0.0
	for _, m := range b.Modes {
		best = math.Max(best, m.SpeedKmh)
	}
	return best
}

// CheapestRate is the lowest positive per-km tariff over all modes.
func (b Benchmarks) CheapestRate() float64 {
	best := math.Inf(1)
	for _, m := range b.Modes {
		if m.CostPerKm > 0 {
			best = math.Min(best, m.CostPerKm)
		}
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}

// LinkTime derives a link's travel time in hours from its distance.
func (b Benchmarks) LinkTime(m Mode, km float64) float64 {
	bm, ok := b.Modes[m]
	if !ok || bm.SpeedKmh <= 0 {
		bm = b.Modes[Land]
	}
	if bm.SpeedKmh <= 0 {
		return b.HandlingHrs
	}
	return km/bm.SpeedKmh + b.HandlingHrs
}

// LinkPrice derives a link's price from its distance.
func (b Benchmarks) LinkPrice(m Mode, km float64) float64 {
	bm, ok := b.Modes[m]
	if !ok {
		bm = b.Modes[Land]
	}
	return b.BaseFee + km*bm.CostPerKm
}

// Prepare rewrites every link's time and price from the benchmarks and then
// normalizes them with the global minimum and maximum over all links.
func (b *Builder) Prepare(bench Benchmarks, scale float64) Norm {
	for i := range b.g.links {
		l := &b.g.links[i]
		l.Time = bench.LinkTime(l.Mode, l.Distance)
		l.Price = bench.LinkPrice(l.Mode, l.Distance)
	}
	return b.Normalize(scale)
}

// Normalize computes the global min/max of time and price over all links and
// fills TimeNorm/PriceNorm on the given scale.
func (b *Builder) Normalize(scale float64) Norm {
	if scale <= 0 {
		scale = DefaultScale
	}
	n := Norm{Scale: scale}
	if len(b.g.links) == 0 {
		b.g.norm = n
		return n
	}
	n.TimeMin, n.PriceMin = math.Inf(1), math.Inf(1)
	n.TimeMax, n.PriceMax = math.Inf(-1), math.Inf(-1)
	for _, l := range b.g.links {
		n.TimeMin = math.Min(n.TimeMin, l.Time)
		n.TimeMax = math.Max(n.TimeMax, l.Time)
		n.PriceMin = math.Min(n.PriceMin, l.Price)
		n.PriceMax = math.Max(n.PriceMax, l.Price)
	}
	for i := range b.g.links {
		l := &b.g.links[i]
		l.TimeNorm = n.TimeNorm(l.Time)
		l.PriceNorm = n.PriceNorm(l.Price)
	}
	b.g.norm = n
	return n
}
