package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"globalroute/internal/classifier"
	"globalroute/internal/graph"
	"globalroute/internal/model"
	"globalroute/internal/policy"
	"globalroute/internal/search"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	for _, l := range []graph.Location{
		{ID: "A", Country: "FR", Latitude: 48.85, Longitude: 2.35},
		{ID: "B", Country: "FR", Latitude: 45.76, Longitude: 4.83},
		{ID: "C", Country: "FR", Latitude: 43.30, Longitude: 5.37},
		{ID: "D", Country: "DE", Latitude: 48.14, Longitude: 11.58},
	} {
		if err := b.AddLocation(l); err != nil {
			t.Fatalf("AddLocation: %v", err)
		}
	}
	for _, l := range []graph.Link{
		{From: "A", To: "B", Mode: graph.Land, Distance: 100},
		{From: "B", To: "D", Mode: graph.Air, Distance: 500},
		{From: "A", To: "C", Mode: graph.Sea, Distance: 300},
		{From: "C", To: "D", Mode: graph.Land, Distance: 200},
	} {
		if _, err := b.AddLink(l); err != nil {
			t.Fatalf("AddLink: %v", err)
		}
	}
	b.Prepare(graph.DefaultBenchmarks(), graph.DefaultScale)
	return b.Build()
}

func newTestServer(t *testing.T, c classifier.Classifier, opts Options) *Server {
	t.Helper()
	e, err := search.NewEngine(testGraph(t), search.DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return NewServer(e, policy.NewResolver(c, policy.Options{}, nil), nil, opts)
}

type findResponse struct {
	AvoidedCountries []string        `json:"avoided_countries"`
	PenaltyCountries []string        `json:"penalty_countries"`
	Paths            json.RawMessage `json:"paths"`
}

func postFind(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, findResponse) {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	var out findResponse
	if rr.Code == http.StatusOK {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return rr, out
}

func paths(t *testing.T, raw json.RawMessage) []model.PathResult {
	t.Helper()
	var ps []model.PathResult
	if err := json.Unmarshal(raw, &ps); err != nil {
		t.Fatalf("paths is not a list: %s", raw)
	}
	return ps
}

func pathError(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var e model.ErrorResult
	if err := json.Unmarshal(raw, &e); err != nil || e.Error == "" {
		t.Fatalf("paths is not an error object: %s", raw)
	}
	return e.Error
}

func TestHealthReadyRoot(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"healthy"`) {
		t.Fatalf("health: got %d %s", rr.Code, rr.Body.String())
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.RootHandler(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "POST /find_paths/") {
		t.Fatalf("root: got %d %s", rr.Code, rr.Body.String())
	}
}

func TestReadyFailsOnCheck(t *testing.T) {
	s := newTestServer(t, nil, Options{Checks: []Check{{Name: "redis", Ping: func(context.Context) error { return errors.New("down") }}}})
	rr := httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "redis: down") {
		t.Fatalf("ready: got %d %s", rr.Code, rr.Body.String())
	}
}

func TestFindPathsDefaults(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	rr, out := postFind(t, http.HandlerFunc(s.FindPathsHandler), "/find_paths/", `{"start":"A","goal":"D","description":"books"}`)
	if rr.Code != 200 {
		t.Fatalf("find: got %d %s", rr.Code, rr.Body.String())
	}
	ps := paths(t, out.Paths)
	if len(ps) != 2 {
		t.Fatalf("want 2 paths, got %d", len(ps))
	}
	for _, p := range ps {
		if p.Path[0] != "A" || p.Path[len(p.Path)-1] != "D" {
			t.Fatalf("bad path %v", p.Path)
		}
		if len(p.Coordinates) != len(p.Path) || len(p.Edges) != len(p.Path)-1 {
			t.Fatalf("coordinates/edges do not match path %v", p.Path)
		}
		if p.DistanceSum <= 0 || p.CO2Sum <= 0 {
			t.Fatalf("sums not filled: %+v", p)
		}
	}
	if out.AvoidedCountries == nil || len(out.AvoidedCountries) != 0 || len(out.PenaltyCountries) != 0 {
		t.Fatalf("unexpected policy lists: %+v", out)
	}
}

func TestFindPathsValidation(t *testing.T) {
	calls := 0
	s := newTestServer(t, classifier.Func(func(context.Context, string) (classifier.Result, error) {
		calls++
		return classifier.Result{Prohibited: []string{"DE"}}, nil
	}), Options{})
	h := http.HandlerFunc(s.FindPathsHandler)
	cases := map[string]string{
		"weight sum":      `{"start":"A","goal":"D","description":"x","prohibited_flag":"avoid","time_weight":0.9,"price_weight":0.5}`,
		"weight range":    `{"start":"A","goal":"D","description":"x","prohibited_flag":"avoid","time_weight":1.5,"price_weight":-0.5}`,
		"no description":  `{"start":"A","goal":"D"}`,
		"no start":        `{"goal":"D","description":"x"}`,
		"top_n":           `{"start":"A","goal":"D","description":"x","top_n":0}`,
		"unknown mode":    `{"start":"A","goal":"D","description":"x","allowed_modes":["rail"]}`,
		"empty modes":     `{"start":"A","goal":"D","description":"x","allowed_modes":[]}`,
		"bad flag":        `{"start":"A","goal":"D","description":"x","prohibited_flag":"penalty"}`,
		"malformed JSON":  `{"start":`,
		"wrong JSON type": `{"start":"A","goal":"D","description":"x","top_n":"three"}`,
	}
	for name, body := range cases {
		rr, _ := postFind(t, h, "/find_paths/", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: got %d %s", name, rr.Code, rr.Body.String())
		}
	}
	rr, _ := postFind(t, h, "/find_paths/", cases["weight sum"])
	if !strings.Contains(rr.Body.String(), "must sum to 1") {
		t.Fatalf("weight sum detail: %s", rr.Body.String())
	}
	if calls != 0 {
		t.Fatalf("classifier consulted for rejected requests: %d calls", calls)
	}
	rr, _ = postFind(t, h, "/find_paths/", `{"start":"A","goal":"D","description":"x","time_weight":0.295,"price_weight":0.7}`)
	if rr.Code != 200 {
		t.Fatalf("sum within tolerance rejected: %d", rr.Code)
	}
}

func TestFindPathsDomainErrors(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	h := http.HandlerFunc(s.FindPathsHandler)

	rr, out := postFind(t, h, "/find_paths/", `{"start":"Z","goal":"D","description":"x"}`)
	if rr.Code != 200 || !strings.Contains(pathError(t, out.Paths), "not in graph") {
		t.Fatalf("unknown start: %d %s", rr.Code, rr.Body.String())
	}

	rr, out = postFind(t, h, "/find_paths/", `{"start":"A","goal":"D","description":"x","avoid_countries":["de"]}`)
	if rr.Code != 200 || !strings.Contains(pathError(t, out.Paths), "banned country") {
		t.Fatalf("banned goal: %d %s", rr.Code, rr.Body.String())
	}
	if len(out.AvoidedCountries) != 1 || out.AvoidedCountries[0] != "DE" {
		t.Fatalf("avoided countries: %v", out.AvoidedCountries)
	}

	rr, out = postFind(t, h, "/find_paths/", `{"start":"A","goal":"D","description":"x","allowed_modes":["sea"]}`)
	if rr.Code != 200 || !strings.Contains(pathError(t, out.Paths), "no paths found") {
		t.Fatalf("no path: %d %s", rr.Code, rr.Body.String())
	}
}

func TestFindPathsUsesCountryPolicy(t *testing.T) {
	c := classifier.Func(func(context.Context, string) (classifier.Result, error) {
		return classifier.Result{Prohibited: []string{"DE"}, Restricted: []string{"FR"}}, nil
	})
	s := newTestServer(t, c, Options{})
	h := http.HandlerFunc(s.FindPathsHandler)

	_, out := postFind(t, h, "/find_paths/", `{"start":"A","goal":"D","description":"batteries","prohibited_flag":"avoid","avoid_countries":["IT"]}`)
	pathError(t, out.Paths)
	if strings.Join(out.AvoidedCountries, ",") != "IT,DE" {
		t.Fatalf("avoided countries: %v", out.AvoidedCountries)
	}

	_, out = postFind(t, h, "/find_paths/", `{"start":"A","goal":"D","description":"batteries","prohibited_flag":"avoid","avoid_countries":["it"," IT ","de"]}`)
	if strings.Join(out.AvoidedCountries, ",") != "IT,DE" {
		t.Fatalf("avoided countries not normalized: %v", out.AvoidedCountries)
	}

	_, out = postFind(t, h, "/find_paths/", `{"start":"A","goal":"D","description":"batteries","restricted_flag":"penalty"}`)
	if len(paths(t, out.Paths)) == 0 || strings.Join(out.PenaltyCountries, ",") != "FR" {
		t.Fatalf("penalty response: %+v", out)
	}
}

func TestFindPathsFailsOpen(t *testing.T) {
	c := classifier.Func(func(context.Context, string) (classifier.Result, error) {
		return classifier.Result{}, errors.New("model unavailable")
	})
	s := newTestServer(t, c, Options{})
	rr, out := postFind(t, http.HandlerFunc(s.FindPathsHandler), "/find_paths/", `{"start":"A","goal":"D","description":"x","prohibited_flag":"avoid","restricted_flag":"avoid"}`)
	if rr.Code != 200 || len(paths(t, out.Paths)) != 2 || len(out.AvoidedCountries) != 0 {
		t.Fatalf("fail-open: %d %s", rr.Code, rr.Body.String())
	}
}

func TestRoutesAndMiddleware(t *testing.T) {
	s := newTestServer(t, nil, Options{AllowOrigins: []string{"https://app.example"}})
	h := s.Routes()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/find_paths", bytes.NewReader([]byte(`{"start":"A","goal":"D","description":"x"}`)))
	req.Header.Set("X-Request-Id", "abc-123")
	h.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("find without slash: %d", rr.Code)
	}
	if rr.Header().Get("X-Request-Id") != "abc-123" {
		t.Fatalf("request id not echoed: %q", rr.Header().Get("X-Request-Id"))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/find_paths/", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET find_paths: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/find_paths/", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("preflight: %d %v", rr.Code, rr.Header())
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/find_paths/", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign preflight allowed: %q", got)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "HTTPS://APP.EXAMPLE")
	h.ServeHTTP(rr, req)
	if rr.Code != 200 || rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("simple CORS request: %d %v", rr.Code, rr.Header())
	}
	if rr.Header().Get("Access-Control-Expose-Headers") != requestIDHeader {
		t.Fatalf("request id not exposed: %v", rr.Header())
	}

	for _, p := range []string{"/openapi.json", "/openapi.yaml", "/metrics", "/docs", "/swagger", "/health"} {
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, p, nil))
		if rr.Code != 200 {
			t.Fatalf("GET %s: %d", p, rr.Code)
		}
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	var doc map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil || doc["openapi"] == nil {
		t.Fatalf("openapi.json: %v", err)
	}
	if !strings.Contains(rr.Body.String(), "upper-cased and de-duplicated") {
		t.Fatalf("avoided_countries normalization undocumented")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/info", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("debug exposed without Debug: %d", rr.Code)
	}
}

func TestRecovererAndDebug(t *testing.T) {
	s := newTestServer(t, nil, Options{Debug: true, Settings: map[string]string{"port": "8000"}})
	rr := httptest.NewRecorder()
	s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("panic: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/info", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"locations":4`) {
		t.Fatalf("debug info: %d %s", rr.Code, rr.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, nil, Options{RateRPS: 0.001, RateBurst: 1})
	h := s.Routes()
	body := `{"start":"A","goal":"D","description":"x"}`
	if rr, _ := postFind(t, h, "/find_paths/", body); rr.Code != 200 {
		t.Fatalf("first: %d", rr.Code)
	}
	rr, _ := postFind(t, h, "/find_paths/", body)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second: %d %v", rr.Code, rr.Header())
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != 200 {
		t.Fatalf("health limited: %d", rr.Code)
	}
}

func TestFindPathsWebsocket(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/find_paths"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"id": "q1", "start": "A", "goal": "D", "description": "x", "top_n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply struct {
		ID     string        `json:"id"`
		Result *findResponse `json:"result"`
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.ID != "q1" || reply.Result == nil || len(paths(t, reply.Result.Paths)) != 1 {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"q2","start":"A","goal":"D","description":"x","time_weight":1,"price_weight":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var bad struct {
		ID      string   `json:"id"`
		Problem *Problem `json:"problem"`
	}
	if err := conn.ReadJSON(&bad); err != nil {
		t.Fatalf("read: %v", err)
	}
	if bad.ID != "q2" || bad.Problem == nil || bad.Problem.Status != http.StatusBadRequest {
		t.Fatalf("unexpected problem reply: %+v", bad)
	}
}
