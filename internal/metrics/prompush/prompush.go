// Package prompush implements a Prometheus Pushgateway backend for
// internal/metrics. Samples accumulate in a private registry and are pushed
// on Flush, which suits a batch build that exits when done.
package prompush

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"evdemand/internal/metrics"
)

// Backend implements metrics.Backend and metrics.Flusher.
type Backend struct {
	pusher *push.Pusher

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

var labelNames = map[string][]string{
	metrics.StageTotal:            {"stage", "status"},
	metrics.StageDurationSeconds:  {"stage", "status"},
	metrics.RowsTotal:             {"kind"},
	metrics.CensusRequestsTotal:   {"status"},
	metrics.CensusDurationSeconds: {"status"},
}

var help = map[string]string{
	metrics.StageTotal:            "Build stages finished, by stage and status.",
	metrics.StageDurationSeconds:  "Build stage wall time.",
	metrics.RowsTotal:             "Rows produced, by table kind.",
	metrics.CensusRequestsTotal:   "Demographic service requests, by HTTP status.",
	metrics.CensusDurationSeconds: "Demographic service round-trip time.",
}

// NewBackend registers the build metrics and targets the Pushgateway at url
// under job.
//
// Errors:
//   - Empty job or url.
func NewBackend(job, url string, grouping map[string]string) (*Backend, error) {
	if job == "" || url == "" {
		return nil, fmt.Errorf("prompush: job and url are required")
	}
	reg := prometheus.NewRegistry()
	b := &Backend{
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	for _, name := range []string{metrics.StageTotal, metrics.RowsTotal, metrics.CensusRequestsTotal} {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help[name]}, labelNames[name])
		reg.MustRegister(cv)
		b.counters[name] = cv
	}
	for _, name := range []string{metrics.StageDurationSeconds, metrics.CensusDurationSeconds} {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    help[name],
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, labelNames[name])
		reg.MustRegister(hv)
		b.histograms[name] = hv
	}

	p := push.New(url, job).Gatherer(reg)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	b.pusher = p
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	cv, ok := b.counters[name]
	if !ok || delta <= 0 {
		return
	}
	cv.With(values(name, labels)).Add(delta)
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	hv, ok := b.histograms[name]
	if !ok || value < 0 {
		return
	}
	hv.With(values(name, labels)).Observe(value)
}

// Flush pushes the full registry, replacing the job's previous group.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: %w", err)
	}
	return nil
}

// values restricts labels to the declared names so With never panics.
func values(name string, l metrics.Labels) prometheus.Labels {
	out := make(prometheus.Labels, len(labelNames[name]))
	for _, n := range labelNames[name] {
		v := l[n]
		if v == "" {
			v = "unknown"
		}
		out[n] = v
	}
	return out
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
