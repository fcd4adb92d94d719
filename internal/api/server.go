package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"globalroute/internal/metrics"
	"globalroute/internal/policy"
	"globalroute/internal/search"
)

// Check is a named readiness probe, e.g. a database or cache ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Options configure a Server.
type Options struct {
	// SearchTimeout bounds one search; zero means no bound beyond the request.
	SearchTimeout time.Duration
	AllowOrigins  []string
	RateRPS       float64
	RateBurst     int
	// Debug exposes /debug/info.
	Debug  bool
	Checks []Check
	// Settings is rendered by /debug/info; secrets must already be redacted.
	Settings any
}

type Server struct {
	Engine  *search.Engine
	Policy  *policy.Resolver
	Log     *zap.Logger
	opts    Options
	limiter *clientLimiter
}

// NewServer wires the route engine and policy resolver into HTTP handlers.
func NewServer(engine *search.Engine, resolver *policy.Resolver, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if resolver == nil {
		resolver = policy.NewResolver(nil, policy.Options{}, log)
	}
	if len(opts.AllowOrigins) == 0 {
		opts.AllowOrigins = []string{"*"}
	}
	s := &Server{Engine: engine, Policy: resolver, Log: log, opts: opts}
	if opts.RateRPS > 0 {
		s.limiter = newClientLimiter(opts.RateRPS, opts.RateBurst)
	}
	return s
}

// Routes returns the full handler with middleware applied.
func (s *Server) Routes() http.Handler {
	metrics.RegisterDefault()
	r := mux.NewRouter()

	find := s.rateLimit(http.HandlerFunc(s.FindPathsHandler))
	r.Handle("/find_paths/", find).Methods(http.MethodPost)
	r.Handle("/find_paths", find).Methods(http.MethodPost)
	r.HandleFunc("/ws/find_paths", s.FindPathsWSHandler).Methods(http.MethodGet)

	r.HandleFunc("/", s.RootHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.ReadyHandler).Methods(http.MethodGet)
	r.HandleFunc("/openapi.yaml", s.OpenAPIHandler).Methods(http.MethodGet)
	r.HandleFunc("/openapi.json", s.OpenAPIJSONHandler).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.DocsHandler).Methods(http.MethodGet)
	r.HandleFunc("/swagger", s.SwaggerHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if s.opts.Debug {
		r.HandleFunc("/debug/info", s.DebugJSON).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" not supported", r.URL.Path)
	})

	var h http.Handler = r
	h = s.cors(h)
	h = s.accessLog(r, h)
	h = s.recoverer(h)
	return h
}
