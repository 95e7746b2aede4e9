package lib

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/* This file implements dev-ops telemetry for the tree and its store in the form of prometheus metrics */

const metricsPattern = "/metrics"

// Metrics represents a server that exposes Prometheus metrics
// every method is safe to call on a nil *Metrics, which turns telemetry off
type Metrics struct {
	server   *http.Server         // the http prometheus server
	config   MetricsConfig        // the configuration
	registry *prometheus.Registry // private registry so several trees can live in one process
	log      LoggerI              // the logger

	TreeMetrics  // engine telemetry
	ProofMetrics // proof builder and verifier telemetry
	StoreMetrics // versioned store telemetry
}

// TreeMetrics represents the telemetry of the sparse merkle tree engine
type TreeMetrics struct {
	Updates      prometheus.Counter   // how many updates (including removals) were applied?
	Gets         prometheus.Counter   // how many point lookups were served?
	UpdateTime   prometheus.Histogram // how long does a single update take?
	NodesWritten prometheus.Counter   // how many nodes were written into pending sets?
}

// ProofMetrics represents the telemetry of proof generation and verification
type ProofMetrics struct {
	ProofsBuilt   prometheus.Counter     // how many multi-proofs were generated?
	ProofTime     prometheus.Histogram   // how long does it take to build a proof?
	ProofBytes    prometheus.Histogram   // how big are encoded proofs?
	Verifications *prometheus.CounterVec // how many verifications by outcome (valid, invalid, malformed)?
}

// StoreMetrics represents the telemetry of the versioned store
type StoreMetrics struct {
	CommittedVersion prometheus.Gauge     // what's the highest committed version?
	Commits          prometheus.Counter   // how many versions were committed?
	CommitTime       prometheus.Histogram // how long does a flush take?
	CommitRetries    prometheus.Counter   // how many flush attempts failed and were retried?
}

// NewMetricsServer() creates the collectors and the (not yet started) exposition server
func NewMetricsServer(config MetricsConfig, log LoggerI) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	mux := http.NewServeMux()
	mux.Handle(metricsPattern, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if log == nil {
		log = NewNullLogger()
	}
	return &Metrics{
		server:   &http.Server{Addr: config.PrometheusAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		config:   config,
		registry: reg,
		log:      log,
		TreeMetrics: TreeMetrics{
			Updates: factory.NewCounter(prometheus.CounterOpts{
				Name: "vsmt_tree_updates_total",
				Help: "Total number of updates and removals applied to the tree",
			}),
			Gets: factory.NewCounter(prometheus.CounterOpts{
				Name: "vsmt_tree_gets_total",
				Help: "Total number of point lookups",
			}),
			UpdateTime: factory.NewHistogram(prometheus.HistogramOpts{
				Name:    "vsmt_tree_update_seconds",
				Help:    "Time to apply a single update in seconds",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			}),
			NodesWritten: factory.NewCounter(prometheus.CounterOpts{
				Name: "vsmt_tree_nodes_written_total",
				Help: "Total number of nodes written into pending version sets",
			}),
		},
		ProofMetrics: ProofMetrics{
			ProofsBuilt: factory.NewCounter(prometheus.CounterOpts{
				Name: "vsmt_proofs_built_total",
				Help: "Total number of multi-proofs generated",
			}),
			ProofTime: factory.NewHistogram(prometheus.HistogramOpts{
				Name:    "vsmt_proof_build_seconds",
				Help:    "Time to build a proof in seconds",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			}),
			ProofBytes: factory.NewHistogram(prometheus.HistogramOpts{
				Name:    "vsmt_proof_bytes",
				Help:    "Encoded size of generated proofs",
				Buckets: prometheus.ExponentialBuckets(64, 2, 12),
			}),
			Verifications: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "vsmt_proof_verifications_total",
				Help: "Total number of proof verifications by outcome",
			}, []string{"outcome"}),
		},
		StoreMetrics: StoreMetrics{
			CommittedVersion: factory.NewGauge(prometheus.GaugeOpts{
				Name: "vsmt_store_committed_version",
				Help: "Highest committed version id",
			}),
			Commits: factory.NewCounter(prometheus.CounterOpts{
				Name: "vsmt_store_commits_total",
				Help: "Total number of committed versions",
			}),
			CommitTime: factory.NewHistogram(prometheus.HistogramOpts{
				Name: "vsmt_store_commit_seconds",
				Help: "Time to flush and publish a version in seconds",
			}),
			CommitRetries: factory.NewCounter(prometheus.CounterOpts{
				Name: "vsmt_store_commit_retries_total",
				Help: "Total number of retried flush attempts",
			}),
		},
	}
}

// Start() begins serving /metrics in the background if enabled
func (m *Metrics) Start() {
	if m == nil || !m.config.MetricsEnabled {
		return
	}
	go func() {
		m.log.Infof("Starting metrics server on %s", m.config.PrometheusAddress)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Errorf("Metrics server failed with err: %s", err.Error())
		}
	}()
}

// Stop() gracefully shuts the exposition server down
func (m *Metrics) Stop() {
	if m == nil || !m.config.MetricsEnabled {
		return
	}
	if err := m.server.Shutdown(context.Background()); err != nil {
		m.log.Error(err.Error())
	}
}

// Handler() returns the /metrics handler so it can be mounted onto another server
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.server.Handler
}

// Registry() exposes the private registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveUpdate() records a single applied update and the nodes it wrote
func (m *Metrics) ObserveUpdate(nodes int, d time.Duration) {
	if m == nil {
		return
	}
	m.Updates.Inc()
	m.NodesWritten.Add(float64(nodes))
	m.UpdateTime.Observe(d.Seconds())
}

// ObserveGet() records a point lookup
func (m *Metrics) ObserveGet() {
	if m == nil {
		return
	}
	m.Gets.Inc()
}

// ObserveProof() records a generated proof and its encoded size
func (m *Metrics) ObserveProof(size int, d time.Duration) {
	if m == nil {
		return
	}
	m.ProofsBuilt.Inc()
	m.ProofBytes.Observe(float64(size))
	m.ProofTime.Observe(d.Seconds())
}

// ObserveVerify() records the outcome of a proof verification
func (m *Metrics) ObserveVerify(valid bool, err error) {
	if m == nil {
		return
	}
	outcome := "valid"
	switch {
	case err != nil:
		outcome = "malformed"
	case !valid:
		outcome = "invalid"
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

// ObserveCommit() records a published version
func (m *Metrics) ObserveCommit(version VersionID, d time.Duration) {
	if m == nil {
		return
	}
	m.Commits.Inc()
	m.CommittedVersion.Set(float64(version))
	m.CommitTime.Observe(d.Seconds())
}

// ObserveCommitRetry() records a failed flush attempt that will be retried
func (m *Metrics) ObserveCommitRetry() {
	if m == nil {
		return
	}
	m.CommitRetries.Inc()
}
