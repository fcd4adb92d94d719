package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"globalroute/internal/logging"
	"globalroute/internal/model"
)

// Streaming search over a websocket: each inbound text message is a
// find-paths request and gets exactly one reply, in order.

const (
	wsReadLimit  = 1 << 20
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 10 * time.Second
)

// wsRequest is a find-paths request with an optional correlation id.
type wsRequest struct {
	ID string `json:"id,omitempty"`
	model.FindPathsRequest
}

// wsReply carries either a result or a problem.
type wsReply struct {
	ID      string                   `json:"id,omitempty"`
	Result  *model.FindPathsResponse `json:"result,omitempty"`
	Problem *Problem                 `json:"problem,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := s.originAllowed(origin)
		return ok
	}}
}

// FindPathsWSHandler handles /ws/find_paths
func (s *Server) FindPathsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	log := logging.FromContext(r.Context(), s.Log)
	client := clientIP(r)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(wsPongWait)); return nil })

	// keepalive; WriteControl may run concurrently with the writer below
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	write := func(v wsReply) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket closed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if typ != websocket.TextMessage {
			continue
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			p := newProblem(http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			if write(wsReply{Problem: &p}) != nil {
				return
			}
			continue
		}
		if s.limiter != nil {
			if ok, _ := s.limiter.allow(client, time.Now()); !ok {
				p := newProblem(http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
				if write(wsReply{ID: req.ID, Problem: &p}) != nil {
					return
				}
				continue
			}
		}

		reply := wsReply{ID: req.ID}
		resp, err := s.findPaths(r.Context(), &req.FindPathsRequest)
		if err != nil {
			status, title := errorStatus(err)
			p := newProblem(status, title, err.Error(), r.URL.Path)
			reply.Problem = &p
		} else {
			reply.Result = &resp
		}
		if err := write(reply); err != nil {
			return
		}
	}
}
