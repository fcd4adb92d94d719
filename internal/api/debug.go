package api

import (
	"net/http"
	"time"

	"globalroute/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build":  buildinfo.Info(),
		"time":   time.Now().UTC().Format(time.RFC3339),
		"config": s.opts.Settings,
	}
	if s.Engine != nil {
		g := s.Engine.Graph()
		info["graph"] = map[string]any{"locations": g.Len(), "links": g.LinkCount(), "norm": g.Norm()}
	}
	writeJSON(w, http.StatusOK, info)
}
