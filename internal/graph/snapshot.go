package graph

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Snapshot is the serialized form of a prepared graph.
type Snapshot struct {
	Norm  Norm       `json:"norm"`
	Nodes []Location `json:"nodes"`
	Links []Link     `json:"links"`
}

// Format selects a snapshot codec.
type Format string

const (
	FormatJSON Format = "json"
	FormatGob  Format = "gob"
)

// FormatFromPath picks the codec from a file extension; anything other than
// .gob is treated as JSON.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".gob") {
		return FormatGob
	}
	return FormatJSON
}

func (s *Snapshot) builder() (*Builder, error) {
	b := NewBuilder()
	for _, n := range s.Nodes {
		if err := b.AddLocation(n); err != nil {
			return nil, err
		}
	}
	for _, l := range s.Links {
		if _, err := b.AddLink(l); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// FromSnapshot builds an immutable Graph. When the snapshot carries no
// normalization constants they are derived from the links' time and price;
// a snapshot whose links carry only distances is prepared with
// DefaultBenchmarks first.
func FromSnapshot(s *Snapshot) (*Graph, error) {
	b, err := s.builder()
	if err != nil {
		return nil, err
	}
	switch {
	case !s.Norm.IsZero() || len(s.Links) == 0:
		b.SetNorm(s.Norm)
	case s.distanceOnly():
		b.Prepare(DefaultBenchmarks(), s.Norm.Scale)
	default:
		b.Normalize(s.Norm.Scale)
	}
	return b.Build(), nil
}

func (s *Snapshot) distanceOnly() bool {
	for _, l := range s.Links {
		if l.Time != 0 || l.Price != 0 {
			return false
		}
	}
	return true
}

// PrepareSnapshot builds a Graph whose link times, prices and
// normalization are recomputed from distances and bench.
func PrepareSnapshot(s *Snapshot, bench Benchmarks, scale float64) (*Graph, error) {
	b, err := s.builder()
	if err != nil {
		return nil, err
	}
	b.Prepare(bench, scale)
	return b.Build(), nil
}

// Snapshot returns the serializable form of g.
func (g *Graph) Snapshot() *Snapshot {
	return &Snapshot{Norm: g.norm, Nodes: g.Locations(), Links: g.Links()}
}

// Decode reads a snapshot in the given format.
func Decode(r io.Reader, f Format) (*Snapshot, error) {
	var s Snapshot
	var err error
	switch f {
	case FormatGob:
		err = gob.NewDecoder(r).Decode(&s)
	default:
		err = json.NewDecoder(r).Decode(&s)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s snapshot: %w", f, err)
	}
	return &s, nil
}

// Encode writes a snapshot in the given format.
func Encode(w io.Writer, s *Snapshot, f Format) error {
	switch f {
	case FormatGob:
		return gob.NewEncoder(w).Encode(s)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
}

// LoadFile reads a snapshot file and builds the Graph.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph snapshot: %w", err)
	}
	defer f.Close()
	s, err := Decode(bufio.NewReader(f), FormatFromPath(path))
	if err != nil {
		return nil, err
	}
	return FromSnapshot(s)
}

// SaveFile writes g to path using the codec implied by its extension.
func SaveFile(path string, g *Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, g.Snapshot(), FormatFromPath(path)); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
