package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/centerionware/smartbillsplitter-sub001/internal/relay/api/respond"
)

// HealthReporter reports cached service health; satisfied by health.Monitor.
type HealthReporter interface {
	IsHealthy() bool
}

// alwaysHealthy stands in when no monitor is wired (tests, single-backend
// dev runs).
type alwaysHealthy struct{}

func (alwaysHealthy) IsHealthy() bool { return true }

// NewRouter wires all relay routes plus the operational endpoints, wrapped
// in recovery, CORS and metrics middleware.
func NewRouter(h *Handler, reporter HealthReporter, m *Metrics) http.Handler {
	if reporter == nil {
		reporter = alwaysHealthy{}
	}
	if m == nil {
		m = NewMetrics()
	}

	router := mux.NewRouter()

	// batch-check before the {shareId} routes so it is not captured as an id.
	router.HandleFunc("/share/batch-check", h.BatchCheck).Methods("POST")
	router.HandleFunc("/share", h.CreateShare).Methods("POST")
	router.HandleFunc("/share/{shareId}", h.UpdateShare).Methods("POST")
	router.HandleFunc("/share/{shareId}", h.GetShare).Methods("GET")

	router.HandleFunc("/sync", h.CreateSync).Methods("POST")
	router.HandleFunc("/sync", h.GetSync).Methods("GET")

	router.HandleFunc("/onetime-key", h.CreateOneTimeKey).Methods("POST")
	router.HandleFunc("/onetime-key/{keyId}/status", h.OneTimeKeyStatus).Methods("GET")
	router.HandleFunc("/onetime-key/{keyId}", h.TakeOneTimeKey).Methods("GET")

	// Always 200; the body reports healthy/unhealthy so load balancers can
	// distinguish "relay up, backend degraded" from "relay down".
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "unhealthy"
		if reporter.IsHealthy() {
			status = "healthy"
		}
		respond.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}).Methods("GET")

	router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods("GET")

	return Recovery(CORS(m.Instrument(router)))
}
