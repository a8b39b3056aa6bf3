package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeBrosOfficial/firehose/pkg/errors"
)

// writeJSON writes JSON with status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a standardized JSON error tagged with the request id.
// Broker outages and timeouts carry a Retry-After hint.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.ShouldRetry(err) {
		w.Header().Set("Retry-After", "1")
	}
	errors.WriteHTTPError(w, err, middleware.GetReqID(r.Context()))
}
