// Package classifier maps a free-text item description to the countries
// where shipping it is prohibited or restricted.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConfigured is returned when the classifier has no credentials.
	ErrNotConfigured = errors.New("classifier not configured")
	// ErrMalformed is returned when the model output is not the expected JSON.
	ErrMalformed = errors.New("malformed classifier output")
)

// Result lists ISO-3166 alpha-2 codes.
type Result struct {
	Prohibited []string `json:"prohibited_in"`
	Restricted []string `json:"restricted_in"`
}

// Empty reports whether both lists are empty.
func (r Result) Empty() bool { return len(r.Prohibited) == 0 && len(r.Restricted) == 0 }

// Classifier classifies a description. Implementations must honour ctx.
type Classifier interface {
	Classify(ctx context.Context, description string) (Result, error)
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, description string) (Result, error)

func (f Func) Classify(ctx context.Context, description string) (Result, error) {
	return f(ctx, description)
}

// Parse decodes model output. Markdown code fences are stripped and both
// keys must be present.
func Parse(text string) (Result, error) {
	text = stripFences(text)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var r Result
	for key, dst := range map[string]*[]string{"prohibited_in": &r.Prohibited, "restricted_in": &r.Restricted} {
		v, ok := raw[key]
		if !ok {
			return Result{}, fmt.Errorf("%w: missing %q", ErrMalformed, key)
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return Result{}, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
		}
	}
	r.Prohibited = Codes(r.Prohibited)
	r.Restricted = Codes(r.Restricted)
	return r, nil
}

// Codes upper-cases, trims and de-duplicates country codes, keeping order.
// It never returns nil.
func Codes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// language tag, e.g. ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
