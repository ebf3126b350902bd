// Package status handles the service health endpoint.
package status

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// OriginCounter reports how many origins have a cached cluster detail.
type OriginCounter interface {
	Len() int
}

// Response is the response shape for GET /healthz.
type Response struct {
	Status        string `json:"status"`
	CachedOrigins int    `json:"cached_origins"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Handler serves process health.
type Handler struct {
	origins OriginCounter
	started time.Time
}

// NewHandler creates a Handler whose uptime starts now.
func NewHandler(origins OriginCounter) *Handler {
	return &Handler{origins: origins, started: time.Now()}
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response := Response{
		Status:        "ok",
		CachedOrigins: h.origins.Len(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(response)
}
