package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"
)

// Defaults for catalog retrieval.
const (
	DefaultTopMatches = 10
	DefaultMinScore   = 30
)

// Country is one entry of an item's prohibited or restricted list.
type Country struct {
	Name    string `json:"country,omitempty"`
	ISOCode string `json:"iso_code"`
}

// Item holds the trade rules recorded for one kind of goods.
type Item struct {
	Prohibited []Country `json:"prohibited_in"`
	Restricted []Country `json:"restricted_in"`
	Notes      string    `json:"notes"`
}

// Catalog is an immutable set of items keyed by lower-case name.
type Catalog struct {
	names []string
	items map[string]Item
}

// NewCatalog copies items into a catalog.
func NewCatalog(items map[string]Item) *Catalog {
	c := &Catalog{items: make(map[string]Item, len(items))}
	for name, it := range items {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		c.items[key] = it
		c.names = append(c.names, key)
	}
	sort.Strings(c.names)
	return c
}

// DecodeCatalog reads a JSON object of item name to Item.
func DecodeCatalog(r io.Reader) (*Catalog, error) {
	var items map[string]Item
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewCatalog(items), nil
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCatalog(f)
}

// Len returns the number of items.
func (c *Catalog) Len() int { return len(c.names) }

// Item returns the named item.
func (c *Catalog) Item(name string) (Item, bool) {
	it, ok := c.items[strings.ToLower(name)]
	return it, ok
}

type match struct {
	name  string
	score float64
}

// Retrieve returns up to n item names whose partial-ratio score against the
// query exceeds minScore, best first.
func (c *Catalog) Retrieve(query string, n int, minScore float64) []string {
	if c == nil || n <= 0 {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	ms := make([]match, 0, len(c.names))
	for _, name := range c.names {
		if s := PartialRatio(q, name); s > minScore {
			ms = append(ms, match{name, s})
		}
	}
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].score > ms[j].score })
	if len(ms) > n {
		ms = ms[:n]
	}
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.name
	}
	return out
}

const noteLimit = 250

type excerptItem struct {
	Prohibited []string `json:"prohibited_in"`
	Restricted []string `json:"restricted_in"`
	Summary    string   `json:"summary"`
}

// Excerpt renders the named items as compact JSON for a prompt, capped at
// limit bytes without splitting a character.
func (c *Catalog) Excerpt(names []string, limit int) string {
	ex := make(map[string]excerptItem, len(names))
	for _, name := range names {
		it, ok := c.items[name]
		if !ok {
			continue
		}
		summary := it.Notes
		if summary == "" {
			summary = "No additional regulatory notes available."
		} else if r := []rune(summary); len(r) > noteLimit {
			summary = string(r[:noteLimit])
		}
		ex[name] = excerptItem{
			Prohibited: isoCodes(it.Prohibited),
			Restricted: isoCodes(it.Restricted),
			Summary:    summary,
		}
	}
	b, _ := json.Marshal(ex)
	if limit > 0 && len(b) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(b[cut]) {
			cut--
		}
		b = b[:cut]
	}
	return string(b)
}

func isoCodes(cs []Country) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ISOCode)
	}
	return out
}

// CatalogOnly classifies by taking the union of the matched items' lists.
type CatalogOnly struct {
	Catalog    *Catalog
	TopMatches int
	MinScore   float64
}

// Classify implements Classifier.
func (c CatalogOnly) Classify(ctx context.Context, description string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if c.Catalog == nil {
		return Result{}, ErrNotConfigured
	}
	n := c.TopMatches
	if n <= 0 {
		n = DefaultTopMatches
	}
	var pro, res []string
	for _, name := range c.Catalog.Retrieve(description, n, c.MinScore) {
		it := c.Catalog.items[name]
		pro = append(pro, isoCodes(it.Prohibited)...)
		res = append(res, isoCodes(it.Restricted)...)
	}
	return Result{Prohibited: Codes(pro), Restricted: Codes(res)}, nil
}
