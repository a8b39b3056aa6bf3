package gateway

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// Routes builds the router. Every path other than the status endpoints is a
// topic.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(g.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.healthHandler)
	r.Get("/status", g.statusHandler)

	r.Get("/*", g.subscribeHandler)
	r.Group(func(r chi.Router) {
		r.Use(g.rateLimitMiddleware)
		r.Put("/*", g.publishHandler)
		r.Post("/*", g.publishHandler)
	})

	return r
}

// subscribeHandler dispatches a GET on a topic to the WebSocket or the long
// poll handler.
func (g *Gateway) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		g.websocketHandler(w, r)
		return
	}
	g.pollHandler(w, r)
}

// topicFromRequest returns the request path as the topic, without a trailing
// slash. The root path is not a topic.
func topicFromRequest(r *http.Request) string {
	topic := r.URL.Path
	if len(topic) > 1 {
		topic = strings.TrimRight(topic, "/")
	}
	if topic == "/" || topic == "" {
		return ""
	}
	return topic
}
