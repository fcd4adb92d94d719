package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "globalroute/internal/classifier"

// Gemini defaults.
const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-1.5-flash"
	excerptLimit    = 1500
	placeholderKey  = "your_gemini_api_key_here"
)

// Gemini asks a generative-language model to pick the prohibited and
// restricted countries out of the catalog items matching the description.
type Gemini struct {
	Endpoint   string
	Model      string
	APIKey     string
	Catalog    *Catalog
	TopMatches int
	MinScore   float64
	HTTP       *http.Client
}

// NewGemini returns a client with default endpoint and model.
func NewGemini(apiKey string, catalog *Catalog) *Gemini {
	return &Gemini{
		Endpoint:   DefaultEndpoint,
		Model:      DefaultModel,
		APIKey:     apiKey,
		Catalog:    catalog,
		TopMatches: DefaultTopMatches,
		MinScore:   DefaultMinScore,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether a usable API key is set.
func (g *Gemini) Configured() bool {
	return g != nil && g.APIKey != "" && g.APIKey != placeholderKey
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Classify implements Classifier. A description matching no catalog item
// yields an empty result without calling the model.
func (g *Gemini) Classify(ctx context.Context, description string) (Result, error) {
	if !g.Configured() {
		return Result{}, ErrNotConfigured
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "classifier.Gemini")
	defer span.End()

	n := g.TopMatches
	if n <= 0 {
		n = DefaultTopMatches
	}
	items := g.Catalog.Retrieve(description, n, g.MinScore)
	span.SetAttributes(attribute.Int("catalog.matches", len(items)))
	if len(items) == 0 {
		return Result{Prohibited: []string{}, Restricted: []string{}}, nil
	}

	text, err := g.generate(ctx, prompt(description, g.Catalog.Excerpt(items, excerptLimit)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	r, err := Parse(text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return r, err
}

func (g *Gemini) generate(ctx context.Context, promptText string) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: promptText}}}}})
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimRight(g.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := g.Model
	if model == "" {
		model = DefaultModel
	}
	u := fmt.Sprintf("%s/models/%s:generateContent?key=%s", endpoint, url.PathEscape(model), url.QueryEscape(g.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generate content: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrMalformed)
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func prompt(query, data string) string {
	return fmt.Sprintf(`A user wants trade regulation details on: %s

Using the provided data, return:
- Prohibited countries (ISO2 codes)
- Restricted countries (ISO2 codes)

Relevant data:
%s

Output must be JSON like this: {"prohibited_in": ["IN"], "restricted_in": ["CN"]}
No markdown, just plaintext.`, query, data)
}
