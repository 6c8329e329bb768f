// Package observability — metrics.go
//
// Prometheus metrics for the process-triage core.
//
// Endpoint: GET /metrics (and GET /healthz) on the address passed to
// ServeMetrics; pt-core's -metrics-addr flag is empty by default, which
// leaves the server off.
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: whatever address is given; loopback is not enforced.
//
// Metric naming convention: process_triage_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - Class and action labels use the fixed enum string (4 and 11 values).
//   - PID is NOT used as a label (unbounded cardinality).

package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for one core run.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Scan (C1) ────────────────────────────────────────────────────────────

	// ProcessesScannedTotal counts processes seen by quick_scan.
	ProcessesScannedTotal prometheus.Counter

	// DeepScanProbesTotal counts per-PID deep-scan probes run, by outcome.
	DeepScanProbesTotal *prometheus.CounterVec

	// ScanDuration records quick_scan and deep_scan wall time.
	ScanDuration *prometheus.HistogramVec

	// ─── Inference (C2) ───────────────────────────────────────────────────────

	// PosteriorsComputedTotal counts Engine.Compute calls, by outcome.
	PosteriorsComputedTotal *prometheus.CounterVec

	// PosteriorByClassHistogram records the winning class's posterior mass.
	PosteriorByClassHistogram *prometheus.HistogramVec

	// ─── Sequential testing (C3) ─────────────────────────────────────────────

	// SPRTDecisionsTotal counts SPRT boundary outcomes.
	SPRTDecisionsTotal *prometheus.CounterVec

	// FDRRejectedTotal counts candidates cleared by e-BH/e-BY, by method.
	FDRRejectedTotal *prometheus.CounterVec

	// ─── Decision (C4) ────────────────────────────────────────────────────────

	// ActionsChosenTotal counts the expected-loss rule's chosen action.
	ActionsChosenTotal *prometheus.CounterVec

	// ExpectedLossHistogram records the chosen action's expected loss.
	ExpectedLossHistogram prometheus.Histogram

	// ─── Safety gates (C4) ────────────────────────────────────────────────────

	// PreCheckBlockedTotal counts precheck failures, by gate name.
	PreCheckBlockedTotal *prometheus.CounterVec

	// ─── Action execution (C5) ───────────────────────────────────────────────

	// ActionExecutionsTotal counts executed actions, by action and status.
	ActionExecutionsTotal *prometheus.CounterVec

	// ActionExecutionDuration records per-action execution wall time.
	ActionExecutionDuration *prometheus.HistogramVec

	// ─── Session (C6) ─────────────────────────────────────────────────────────

	// SessionsTotal counts sessions created, by terminal state.
	SessionsTotal *prometheus.CounterVec

	// SessionDuration records time from Created to a terminal state.
	SessionDuration prometheus.Histogram

	// RunUptimeSeconds is the number of seconds since this process started.
	RunUptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers every process-triage Prometheus metric
// on a fresh, private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		ProcessesScannedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "process_triage",
			Subsystem: "scan",
			Name:      "processes_scanned_total",
			Help:      "Total processes observed by quick_scan across all sessions.",
		}),

		DeepScanProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_triage",
			Subsystem: "scan",
			Name:      "deep_scan_probes_total",
			Help:      "Total deep-scan per-PID probes, by outcome (ok, degraded, timeout).",
		}, []string{"outcome"}),

		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "process_triage",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Scan wall-clock duration, by phase (quick, deep).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),

		PosteriorsComputedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_triage",
			Subsystem: "inference",
			Name:      "posteriors_computed_total",
			Help:      "Total posterior computations, by outcome (ok, non_finite).",
		}, []string{"outcome"}),

		PosteriorByClassHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "process_triage",
			Subsystem: "inference",
			Name:      "posterior_mass",
			Help:      "Distribution of posterior mass assigned to the winning class.",
			Buckets:   []float64{0.25, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1.0},
		}, []string{"class"}),

		SPRTDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_triage",
			Subsystem: "sequential",
			Name:      "sprt_decisions_total",
			Help:      "Total SPRT boundary crossings, by boundary (continue, upper, lower).",
		}, []string{"boundary"}),

		FDRRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_triage",
			Subsystem: "sequential",
			Name:      "fdr_rejected_total",
			Help:      "Total candidates cleared by FDR control, by method (bh, by).",
		}, []string{"method"}),

		ActionsChosenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_triage",
			Subsystem: "decision",
			Name:      "actions_chosen_total",
			Help:      "Total actions chosen by the expected-loss rule, by action.",
		}, []string{"action"}),

		ExpectedLossHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "process_triage",
			Subsystem: "decision",
			Name:      "expected_loss",
			Help:      "Distribution of the chosen action's expected loss.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 50, 100},
		}),

		PreCheckBlockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_triage",
			Subsystem: "safety",
			Name:      "precheck_blocked_total",
			Help:      "Total precheck failures, by gate name.",
		}, []string{"gate"}),

		ActionExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_triage",
			Subsystem: "action",
			Name:      "executions_total",
			Help:      "Total action executions, by action and status.",
		}, []string{"action", "status"}),

		ActionExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "process_triage",
			Subsystem: "action",
			Name:      "duration_seconds",
			Help:      "Per-action execution wall-clock duration, by action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),

		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "process_triage",
			Subsystem: "session",
			Name:      "total",
			Help:      "Total sessions reaching a terminal state, by state.",
		}, []string{"state"}),

		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "process_triage",
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Time from session Created to a terminal state.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		RunUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "process_triage",
			Subsystem: "run",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since this process started.",
		}),
	}

	reg.MustRegister(
		m.ProcessesScannedTotal,
		m.DeepScanProbesTotal,
		m.ScanDuration,
		m.PosteriorsComputedTotal,
		m.PosteriorByClassHistogram,
		m.SPRTDecisionsTotal,
		m.FDRRejectedTotal,
		m.ActionsChosenTotal,
		m.ExpectedLossHistogram,
		m.PreCheckBlockedTotal,
		m.ActionExecutionsTotal,
		m.ActionExecutionDuration,
		m.SessionsTotal,
		m.SessionDuration,
		m.RunUptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on addr. Blocks
// until ctx is cancelled or the server fails to start.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.RunUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
