// Package httpapi exposes pacsnet's admin surface: health, readiness, server
// statistics and archive integrity, over a chi router.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/caio-sobreiro/pacsnet/archive"
	"github.com/caio-sobreiro/pacsnet/index"
	"github.com/caio-sobreiro/pacsnet/server"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router builds the admin HTTP router: /healthz, /readyz, /stats and
// /archive/integrity, plus /metrics when metricsHandler is non-nil.
func Router(srv *server.Server, a *archive.Archive, idx index.Index, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := srv.Stats()
		writeJSON(w, map[string]interface{}{
			"start_time":            stats.StartTime,
			"total_associations":    stats.TotalAssociations,
			"active_associations":   stats.ActiveAssociations,
			"rejected_associations": stats.RejectedAssociations,
			"archived_instances":    idx.InstanceCount(),
		})
	})

	r.Get("/archive/integrity", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, a.VerifyIntegrity())
	})

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
