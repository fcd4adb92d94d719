package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"globalroute/internal/buildinfo"
	"globalroute/internal/classifier"
	"globalroute/internal/logging"
	"globalroute/internal/model"
	"globalroute/internal/result"
	"globalroute/internal/search"
)

const maxBodyBytes = 1 << 20

var errSearchTimeout = errors.New("search timed out")

// FindPathsHandler handles POST /find_paths/
func (s *Server) FindPathsHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeFindPaths(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	resp, err := s.findPaths(r.Context(), &req)
	if err != nil {
		status, title := errorStatus(err)
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeFindPaths(body io.Reader) (model.FindPathsRequest, error) {
	var req model.FindPathsRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return req, err
	}
	return req, nil
}

// findPaths runs one request end to end. Domain outcomes are returned inside
// the response; the error is reserved for invalid requests and failures.
func (s *Server) findPaths(ctx context.Context, req *model.FindPathsRequest) (model.FindPathsResponse, error) {
	log := logging.FromContext(ctx, s.Log)
	p, err := validateFindPaths(req)
	if err != nil {
		return model.FindPathsResponse{}, err
	}

	res := s.Policy.Resolve(ctx, p.description, p.prohibited, p.restricted)
	avoid := make([]string, 0, len(p.avoid)+len(res.Policy.Avoid))
	avoid = append(avoid, p.avoid...)
	avoid = append(avoid, res.Policy.Avoid...)
	avoid = classifier.Codes(avoid)

	q := p.query
	q.Avoid = avoid
	q.Penalty = res.Policy.Penalty

	sctx := ctx
	if s.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
	}
	cands, err := s.Engine.Search(sctx, q)

	out := model.FindPathsResponse{AvoidedCountries: avoid, PenaltyCountries: res.Policy.Penalty}
	switch {
	case err == nil:
		out.Paths = result.Assemble(cands)
	case search.IsDomain(err):
		log.Info("no route", zap.String("start", q.Start), zap.String("goal", q.Goal), zap.Error(err))
		out.Paths = model.ErrorResult{Error: err.Error()}
	case errors.Is(err, search.ErrInvalidQuery):
		return model.FindPathsResponse{}, &ValidationError{Msg: err.Error()}
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return model.FindPathsResponse{}, fmt.Errorf("%w after %s", errSearchTimeout, s.opts.SearchTimeout)
	default:
		log.Error("search failed", zap.Error(err))
		return model.FindPathsResponse{}, fmt.Errorf("an error occurred: %w", err)
	}
	return out, nil
}

func errorStatus(err error) (int, string) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, errSearchTimeout):
		return http.StatusServiceUnavailable, "Search timed out"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// RootHandler handles GET /
func (s *Server) RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Welcome to the GlobalRoute Navigator API",
		"endpoints": map[string]string{
			"POST /find_paths/":  "Find optimal paths between locations",
			"GET /ws/find_paths": "Find paths over a websocket, one request per message",
			"GET /health":        "Check API health status",
			"GET /ready":         "Check graph and dependencies are ready",
			"GET /openapi.json":  "OpenAPI document",
			"GET /metrics":       "Prometheus metrics",
		},
		"documentation": "/docs",
		"version":       buildinfo.Version,
	})
}

// HealthHandler handles GET /health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Health{Status: "healthy", Message: "GlobalRoute Navigator Backend API is running"})
}

// ReadyHandler handles GET /ready
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if s.Engine == nil || s.Engine.Graph().Len() == 0 {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "graph not loaded", r.URL.Path)
		return
	}
	for _, c := range s.opts.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := c.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", c.Name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	g := s.Engine.Graph()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "locations": g.Len(), "links": g.LinkCount()})
}
