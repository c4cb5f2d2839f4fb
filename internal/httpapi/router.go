// SPDX-License-Identifier: MIT

// Package httpapi binds internal/command's transport-agnostic Surface to
// HTTP, per spec.md 6's command table and SPEC_FULL.md 6's route list.
// Routing uses chi (github.com/go-chi/chi/v5, the example pack's HTTP
// stack); request logging uses zerolog, matching the teacher's structured-
// logging idiom generalized to an HTTP middleware.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gnimrodg/rtsp-recorder/internal/command"
	"github.com/gnimrodg/rtsp-recorder/internal/coreerr"
)

// Metrics are the Prometheus gauges/counters exposed at /metrics,
// replacing the teacher's hand-rolled text formatter (internal/health's
// original serveMetrics) with the pack's prometheus/client_golang.
type Metrics struct {
	RecordingsByStatus *prometheus.GaugeVec
	StorageUsedGB       prometheus.Gauge
	CustodianDeletions  *prometheus.CounterVec
}

// NewMetrics registers and returns the recorder's metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordingsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtsp_recorder_recordings",
			Help: "Current number of recordings by derived status.",
		}, []string{"status"}),
		StorageUsedGB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rtsp_recorder_storage_used_gb",
			Help: "Total on-disk size of successful recordings, in GB.",
		}),
		CustodianDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtsp_recorder_custodian_deletions_total",
			Help: "Recordings deleted by the Storage Custodian, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.RecordingsByStatus, m.StorageUsedGB, m.CustodianDeletions)
	return m
}

// refresh updates the gauges from the surface's current state. Called
// lazily on each /metrics scrape rather than on a timer, since the surface
// already holds the authoritative in-memory state.
func (m *Metrics) refresh(surf *command.Surface) {
	m.RecordingsByStatus.Reset()
	stats := surf.GetRecordingStats()
	for status, n := range stats.ByStatus {
		m.RecordingsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
	m.StorageUsedGB.Set(surf.GetStorageStats().UsedGB)
}

// NewRouter builds the chi router binding surf to the HTTP routes listed
// in SPEC_FULL.md 6. logger, if non-nil, is attached to every request via
// zerolog's middleware; a nil logger disables request logging.
func NewRouter(surf *command.Surface, metrics *prometheus.Registry, appMetrics *Metrics, logger *zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if logger != nil {
		r.Use(requestLogger(*logger))
	}

	r.Get("/healthz", handleHealthz(surf))
	if metrics != nil {
		r.Handle("/metrics", metricsHandler(surf, metrics, appMetrics))
	}

	r.Route("/recordings", func(r chi.Router) {
		r.Get("/", handleListRecordings(surf))
		r.Post("/", handleCreateRecording(surf))
		r.Get("/stats", handleRecordingStats(surf))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGetRecording(surf))
			r.Patch("/", handleUpdateRecording(surf))
			r.Delete("/", handleDeleteRecording(surf))
			r.Post("/start", handleStartRecording(surf))
			r.Post("/stop", handleStopRecording(surf))
			r.Post("/probe-mode", handleProbeMode(surf))
		})
	})

	r.Route("/streams", func(r chi.Router) {
		r.Get("/", handleListStreams(surf))
		r.Post("/", handleCreateStream(surf))
		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/", handleUpdateStream(surf))
			r.Delete("/", handleDeleteStream(surf))
		})
	})

	r.Post("/probe", handleProbeStream(surf))
	r.Get("/storage", handleStorageStats(surf))
	r.Post("/storage/cleanup", handleStorageCleanup(surf))
	r.Get("/settings", handleGetSettings(surf))
	r.Patch("/settings", handleUpdateSettings(surf))

	return r
}

func metricsHandler(surf *command.Surface, reg *prometheus.Registry, m *Metrics) http.Handler {
	base := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		m.refresh(surf)
		base.ServeHTTP(w, req)
	})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func handleHealthz(surf *command.Surface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"recordings": surf.GetRecordingStats(),
		})
	}
}

// writeJSON writes v as a compact JSON body with status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps one of coreerr's typed errors to the matching HTTP
// status, per spec.md 7 and SPEC_FULL.md 7's "internal/httpapi maps them
// to 400/409/404 respectively".
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case coreerr.IsValidation(err):
		status = http.StatusBadRequest
	case coreerr.IsConflict(err):
		status = http.StatusConflict
	case coreerr.IsNotFound(err):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// contextWithTimeout is a small helper so handlers share one default
// request-scoped deadline for surface calls that take a context.
func contextWithTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 10*time.Second)
}
