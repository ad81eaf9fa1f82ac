// Package datadog implements a Datadog backend for internal/metrics.
//
// Samples are buffered in memory and submitted on a ticker (default once per
// minute) plus one final submission on Close. A build is usually short, so
// in practice the Close flush carries most of the data.
//
// Concurrency:
//   - IncCounter/ObserveHistogram may be called from any goroutine.
//   - Flush snapshots and resets buffers under the mutex, then submits
//     outside it.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"evdemand/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "evdemand".
	JobName string

	// Tags are extra Datadog tags, e.g. "env:prod" or "run_id:<uuid>".
	Tags []string

	// FlushEvery controls periodic submission. Defaults to 60s.
	FlushEvery time.Duration

	// Test seams; production leaves them nil.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags  []string
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu  sync.Mutex
	buf buffers
}

// buffers is one collection window.
type buffers struct {
	stageCounts  map[string]float64   // stage\x00status
	stageSamples map[string][]float64 // stage\x00status
	rowCounts    map[string]float64   // kind
	censusCounts map[string]float64   // status
	censusDur    map[string][]float64 // status
}

func newBuffers() buffers {
	return buffers{
		stageCounts:  make(map[string]float64),
		stageSamples: make(map[string][]float64),
		rowCounts:    make(map[string]float64),
		censusCounts: make(map[string]float64),
		censusDur:    make(map[string][]float64),
	}
}

func (s buffers) isEmpty() bool {
	return len(s.stageCounts) == 0 &&
		len(s.stageSamples) == 0 &&
		len(s.rowCounts) == 0 &&
		len(s.censusCounts) == 0 &&
		len(s.censusDur) == 0
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop.
//
// Edge cases:
//   - Credentials come from DD_API_KEY/DD_SITE via the client's default context.
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Errors:
//   - None today; network errors surface from Flush and Close.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "evdemand"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}
	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		buf:        newBuffers(),
	}
	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := b.newTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. It is safe to
// call more than once; later calls only flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StageTotal:
		b.buf.stageCounts[stageKey(labels)] += delta
	case metrics.RowsTotal:
		if kind := labels["kind"]; kind != "" {
			b.buf.rowCounts[kind] += delta
		}
	case metrics.CensusRequestsTotal:
		b.buf.censusCounts[statusOf(labels)] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StageDurationSeconds:
		k := stageKey(labels)
		b.buf.stageSamples[k] = append(b.buf.stageSamples[k], value)
	case metrics.CensusDurationSeconds:
		s := statusOf(labels)
		b.buf.censusDur[s] = append(b.buf.censusDur[s], value)
	}
}

func (b *Backend) snapshotAndReset() buffers {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf
	b.buf = newBuffers()
	return s
}

// Flush submits buffered samples and resets local buffers.
//
// Errors:
//   - Returns any error from Datadog submission; buffers are dropped either
//     way.
//   - Returns nil when there is nothing to submit.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}
	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure: no locks, network or clocks.
func (b *Backend) buildSeries(s buffers, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, 8*len(s.stageSamples)+len(s.stageCounts)+len(s.rowCounts)+8)

	for _, k := range sortedKeys(s.stageCounts) {
		stage, status := splitStageKey(k)
		tags := withTags(b.baseTags, "stage:"+stage, "status:"+status)
		series = append(series, point("evdemand.stage.total", datadogV2.METRICINTAKETYPE_COUNT, s.stageCounts[k], tags, nowUnix))
	}
	for _, k := range sortedKeys(s.rowCounts) {
		tags := withTags(b.baseTags, "kind:"+k)
		series = append(series, point("evdemand.rows.total", datadogV2.METRICINTAKETYPE_COUNT, s.rowCounts[k], tags, nowUnix))
	}
	for _, k := range sortedKeys(s.censusCounts) {
		tags := withTags(b.baseTags, "status:"+k)
		series = append(series, point("evdemand.census.requests.total", datadogV2.METRICINTAKETYPE_COUNT, s.censusCounts[k], tags, nowUnix))
	}
	for _, k := range sortedKeys(s.stageSamples) {
		stage, status := splitStageKey(k)
		tags := withTags(b.baseTags, "stage:"+stage, "status:"+status)
		series = appendPercentiles(series, "evdemand.stage.duration_seconds", s.stageSamples[k], tags, nowUnix)
	}
	for _, k := range sortedKeys(s.censusDur) {
		tags := withTags(b.baseTags, "status:"+k)
		series = appendPercentiles(series, "evdemand.census.request_duration_seconds", s.censusDur[k], tags, nowUnix)
	}
	return series
}

// appendPercentiles appends p50/p90/p99/max/samples gauges for samples. It
// sorts a copy and does nothing for an empty set.
func appendPercentiles(series []datadogV2.MetricSeries, prefix string, samples []float64, tags []string, nowUnix int64) []datadogV2.MetricSeries {
	if len(samples) == 0 {
		return series
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)
	gauge := datadogV2.METRICINTAKETYPE_GAUGE
	return append(series,
		point(prefix+".p50", gauge, percentileNearestRank(cp, 0.50), tags, nowUnix),
		point(prefix+".p90", gauge, percentileNearestRank(cp, 0.90), tags, nowUnix),
		point(prefix+".p99", gauge, percentileNearestRank(cp, 0.99), tags, nowUnix),
		point(prefix+".max", gauge, cp[len(cp)-1], tags, nowUnix),
		point(prefix+".samples", gauge, float64(len(cp)), tags, nowUnix),
	)
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func stageKey(l metrics.Labels) string {
	return l["stage"] + "\x00" + statusOf(l)
}

func splitStageKey(k string) (stage, status string) {
	if i := strings.IndexByte(k, 0); i >= 0 {
		return k[:i], k[i+1:]
	}
	return k, "unknown"
}

func statusOf(l metrics.Labels) string {
	if s := l["status"]; s != "" {
		return s
	}
	return "unknown"
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	return append(out, extras...)
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	switch {
	case n == 0:
		return 0
	case p <= 0:
		return s[0]
	case p >= 1:
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:mobility".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
