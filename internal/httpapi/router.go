package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meme-lord/fontleak/internal/orchestrator"
	"github.com/meme-lord/fontleak/internal/session"
)

// Router builds the complete Chi mux: the leak protocol's three endpoints
// (spec §6.2) plus the operational surface SPEC_FULL.md §6.5 adds
// (/healthz, /readyz, /metrics).
func Router(orch *orchestrator.Orchestrator, store *session.Store, logger *zap.Logger, reg *prometheus.Registry, leakRateLimit rate.Limit, leakBurst int) *chi.Mux {
	metrics := NewMetrics(reg, func() float64 { return float64(store.Len()) })

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(Security())
	r.Use(CORS())

	r.With(metrics.Instrument("setup")).Get("/", orch.Setup)
	r.With(metrics.Instrument("static")).Get("/static", orch.Static)
	r.With(metrics.Instrument("font")).Get("/font.ttf", orch.DefaultFont)
	r.With(metrics.Instrument("leak"), RateLimit(leakRateLimit, leakBurst)).Get("/leak", orch.Leak)

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(store))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadyz reports ready once the session store exists and is
// reachable; this service has no external dependencies (no database, no
// cache) so readiness here is really just "has finished booting".
func handleReadyz(store *session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":          "ready",
			"active_sessions": store.Len(),
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
