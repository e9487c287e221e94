// Package metrics exposes polling progress as Prometheus metrics.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ppiankov/chatharvest/internal/harvest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Recorder implements harvest.Observer. Each Recorder owns its registry so
// several can live in one process.
type Recorder struct {
	reg *prometheus.Registry

	cycles     *prometheus.CounterVec
	extracted  prometheus.Counter
	stale      prometheus.Counter
	duplicates prometheus.Counter
	accepted   prometheus.Counter
	duration   prometheus.Histogram
	watermark  prometheus.Gauge

	mu      sync.Mutex
	last    time.Time
	lastErr string
	total   int
}

var _ harvest.Observer = (*Recorder)(nil)

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatharvest_cycles_total",
			Help: "Polling cycles by outcome",
		}, []string{"status"}),
		extracted: f.NewCounter(prometheus.CounterOpts{
			Name: "chatharvest_entries_extracted_total",
			Help: "Chat entries found in snapshots",
		}),
		stale: f.NewCounter(prometheus.CounterOpts{
			Name: "chatharvest_entries_stale_total",
			Help: "Entries dropped for being older than the watermark",
		}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "chatharvest_entries_duplicate_total",
			Help: "Entries dropped as already recorded",
		}),
		accepted: f.NewCounter(prometheus.CounterOpts{
			Name: "chatharvest_entries_accepted_total",
			Help: "New entries handed to the sink",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatharvest_cycle_duration_seconds",
			Help:    "Time spent fetching, extracting and writing one snapshot",
			Buckets: prometheus.DefBuckets,
		}),
		watermark: f.NewGauge(prometheus.GaugeOpts{
			Name: "chatharvest_watermark_timestamp_seconds",
			Help: "Unix time of the newest recorded comment",
		}),
	}
}

// CycleDone records one finished cycle. Failed cycles only count toward
// the cycle total and duration.
func (r *Recorder) CycleDone(res harvest.Result, elapsed time.Duration, err error) {
	r.duration.Observe(elapsed.Seconds())

	r.mu.Lock()
	r.last = time.Now()
	r.total++
	r.lastErr = ""
	if err != nil {
		r.lastErr = err.Error()
	}
	r.mu.Unlock()

	if err != nil {
		r.cycles.WithLabelValues("error").Inc()
		return
	}
	r.cycles.WithLabelValues("ok").Inc()
	r.extracted.Add(float64(res.Extracted))
	r.stale.Add(float64(res.Extracted - res.Fresh))
	r.duplicates.Add(float64(res.Fresh - len(res.Accepted)))
	r.accepted.Add(float64(len(res.Accepted)))
	if res.Watermark.Valid {
		r.watermark.Set(float64(res.Watermark.Unix))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Router mounts /metrics and /health.
func (r *Recorder) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Method(http.MethodGet, "/metrics", r.Handler())
	router.Get("/health", r.health)
	return router
}

type healthResponse struct {
	Status    string `json:"status"`
	Cycles    int    `json:"cycles"`
	LastCycle string `json:"last_cycle,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

func (r *Recorder) health(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	resp := healthResponse{Status: "ok", Cycles: r.total, LastError: r.lastErr}
	if !r.last.IsZero() {
		resp.LastCycle = r.last.UTC().Format(time.RFC3339)
	}
	r.mu.Unlock()
	if resp.LastError != "" {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// Serve answers on ln until ctx is done, then shuts the server down.
func (r *Recorder) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           r.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
