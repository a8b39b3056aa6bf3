package gateway

import (
	"net/http"
	"time"
)

// healthResponse is the JSON structure used by healthHandler
type healthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
}

func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		StartedAt: g.startedAt,
		Uptime:    time.Since(g.startedAt).String(),
	})
}

// statusResponse reports what the gateway is currently serving
type statusResponse struct {
	Subscriptions int      `json:"subscriptions"`
	Topics        []string `json:"topics"`
	DefaultTTLMs  int64    `json:"default_ttl_ms"`
	Uptime        string   `json:"uptime"`
}

// statusHandler reports live subscriptions and the topics they follow
func (g *Gateway) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Subscriptions: g.manager.Count(),
		Topics:        g.manager.Topics(),
		DefaultTTLMs:  g.manager.DefaultTTL().Milliseconds(),
		Uptime:        time.Since(g.startedAt).String(),
	})
}
