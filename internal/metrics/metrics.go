// Package metrics is the backend-neutral instrumentation seam for panel builds.
//
// Build code records through the package-level helpers; the command decides
// which backend (Datadog, Pushgateway or none) receives the samples.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names understood by every backend.
const (
	StageTotal            = "evdemand_stage_total"
	StageDurationSeconds  = "evdemand_stage_duration_seconds"
	RowsTotal             = "evdemand_rows_total"
	CensusRequestsTotal   = "evdemand_census_requests_total"
	CensusDurationSeconds = "evdemand_census_request_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives samples. Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer samples.
type Flusher interface {
	Flush() error
}

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nop{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend when it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStage counts one finished stage and its duration.
func RecordStage(stage string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"stage": stage, "status": status}
	IncCounter(StageTotal, 1, l)
	ObserveHistogram(StageDurationSeconds, d.Seconds(), l)
}

// RecordRows counts rows produced for kind (sessions, stations, panel...).
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RowsTotal, float64(n), Labels{"kind": kind})
}

// RecordCensusRequest counts one demographic-service round trip. status is
// the HTTP status code, or 0 for transport failures.
func RecordCensusRequest(status int, d time.Duration) {
	s := "transport_error"
	if status > 0 {
		s = strconv.Itoa(status)
	}
	l := Labels{"status": s}
	IncCounter(CensusRequestsTotal, 1, l)
	ObserveHistogram(CensusDurationSeconds, d.Seconds(), l)
}
