// Package metrics holds the Prometheus counters for the pipeline and the
// control session.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ibeckermayer/replyscout/internal/dispatch"
)

const namespace = "replyscout"

// Metrics is the set of counters exported by one process
type Metrics struct {
	Registry *prometheus.Registry

	Discovered  *prometheus.CounterVec
	Ranked      prometheus.Counter
	Cards       prometheus.Counter
	Generations *prometheus.CounterVec
	Approvals   *prometheus.CounterVec
	Dispatches  *prometheus.CounterVec
	Runs        *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Discovered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_discovered_total",
			Help:      "Posts found by discovery, by source",
		}, []string{"source"}),
		Ranked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_ranked_total",
			Help:      "Posts that passed filtering and ranking",
		}),
		Cards: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cards_sent_total",
			Help:      "Approval cards sent to the reviewer",
		}),
		Generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Provider calls, by provider and outcome",
		}, []string{"provider", "outcome"}),
		Approvals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Reviewer approvals, by option chosen",
		}, []string{"option"}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_results_total",
			Help:      "Auto-post jobs, by outcome",
		}, []string{"outcome"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs, by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveGeneration counts one provider attempt.
func (m *Metrics) ObserveGeneration(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Generations.WithLabelValues(provider, outcome).Inc()
}

// ObserveApproval counts one approval.
func (m *Metrics) ObserveApproval(option string) {
	m.Approvals.WithLabelValues(option).Inc()
}

// ObserveDispatch counts one finished auto-post job.
func (m *Metrics) ObserveDispatch(r dispatch.Result) {
	m.Dispatches.WithLabelValues(string(r.Outcome)).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "component", "metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
