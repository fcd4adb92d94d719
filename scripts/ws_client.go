// Package main runs a demo WebSocket client for streamed route searches.
//
//	go run ./scripts/ws_client.go -start Shanghai -goal Rotterdam -goal Hamburg
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type request struct {
	ID             string   `json:"id"`
	Start          string   `json:"start"`
	Goal           string   `json:"goal"`
	TopN           int      `json:"top_n"`
	AllowedModes   []string `json:"allowed_modes,omitempty"`
	AvoidCountries []string `json:"avoid_countries,omitempty"`
	Description    string   `json:"description"`
}

type reply struct {
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Problem json.RawMessage `json:"problem,omitempty"`
}

type goals []string

func (g *goals) String() string     { return strings.Join(*g, ",") }
func (g *goals) Set(v string) error { *g = append(*g, v); return nil }

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	host := flag.String("host", "localhost:"+port, "server host:port")
	start := flag.String("start", "Shanghai", "start location id")
	topN := flag.Int("top", 3, "paths per search")
	modes := flag.String("modes", "", "comma separated allowed modes")
	avoid := flag.String("avoid", "", "comma separated country codes to avoid")
	desc := flag.String("description", "general cargo", "cargo description")
	var targets goals
	flag.Var(&targets, "goal", "goal location id (repeatable)")
	flag.Parse()
	if len(targets) == 0 {
		targets = goals{"Rotterdam"}
	}

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws/find_paths"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	for i, goal := range targets {
		req := request{
			ID:             fmt.Sprintf("%d", i+1),
			Start:          *start,
			Goal:           goal,
			TopN:           *topN,
			AllowedModes:   splitList(*modes),
			AvoidCountries: splitList(*avoid),
			Description:    *desc,
		}
		if err := c.WriteJSON(req); err != nil {
			log.Fatal(err)
		}
	}

	_ = c.SetReadDeadline(time.Now().Add(30 * time.Second))
	for range targets {
		var m reply
		if err := c.ReadJSON(&m); err != nil {
			log.Fatalf("read: %v", err)
		}
		if len(m.Problem) > 0 {
			log.Printf("WS <- %s problem: %s", m.ID, m.Problem)
			continue
		}
		log.Printf("WS <- %s: %s", m.ID, m.Result)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
