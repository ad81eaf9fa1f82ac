package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"evdemand/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

func quietTicker(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) }

func newTestBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:   "job1",
		submitter: fs,
		now:       func() time.Time { return time.Unix(1000, 0) },
		newTicker: quietTicker,
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func seriesNames(p datadogV2.MetricPayload) []string {
	out := make([]string, 0, len(p.Series))
	for _, s := range p.Series {
		out = append(out, s.Metric)
	}
	return out
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_fallback", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "  ", dd: "\t", want: "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewBackend_Defaults(t *testing.T) {
	b, err := NewBackend(context.Background(), Options{
		Tags:      []string{"service:evdemand"},
		submitter: &fakeSubmitter{},
		newTicker: quietTicker,
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "job:evdemand") || !contains(b.baseTags, "service:evdemand") {
		t.Fatalf("baseTags=%v", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	metrics.SetBackend(b)
	t.Cleanup(func() { metrics.SetBackend(nil) })

	metrics.RecordStage("merge", nil, 500*time.Millisecond)
	metrics.RecordRows("panel", 42)
	metrics.RecordCensusRequest(200, 100*time.Millisecond)

	if err := metrics.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
	if !b.buf.isEmpty() {
		t.Fatalf("buffers not reset after Flush")
	}

	names := seriesNames(fs.last())
	for _, w := range []string{
		"evdemand.stage.total",
		"evdemand.rows.total",
		"evdemand.census.requests.total",
		"evdemand.stage.duration_seconds.p50",
		"evdemand.stage.duration_seconds.samples",
		"evdemand.census.request_duration_seconds.max",
	} {
		if !contains(names, w) {
			t.Fatalf("payload missing %q; got=%v", w, names)
		}
	}

	for _, s := range fs.last().Series {
		if s.Metric == "evdemand.stage.total" {
			if !contains(s.Tags, "stage:merge") || !contains(s.Tags, "status:ok") || !contains(s.Tags, "job:job1") {
				t.Fatalf("stage tags=%v", s.Tags)
			}
			if *s.Points[0].Value != 1 || *s.Points[0].Timestamp != 1000 {
				t.Fatalf("stage point=%v", s.Points[0])
			}
		}
	}
}

func TestFlush_NoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("unexpected submission count=%d", fs.count())
	}
}

func TestFlush_PropagatesSubmitError(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("403")}
	b := newTestBackend(t, fs)
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "sessions"})
	if err := b.Flush(); err == nil {
		t.Fatalf("expected submit error")
	}
	if !b.buf.isEmpty() {
		t.Fatalf("buffers should be dropped on error")
	}
}

func TestIgnoresUnknownAndInvalidSamples(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter("something_else", 1, nil)
	b.IncCounter(metrics.StageTotal, 0, metrics.Labels{"stage": "x"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.StageDurationSeconds, -1, nil)
	b.ObserveHistogram("other", 1, nil)

	if !b.buf.isEmpty() {
		t.Fatalf("expected empty buffers, got %+v", b.buf)
	}
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}

	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "panel"})
	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) && fs.count() < 1 {
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("expected a background flush")
	}

	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "panel"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}
	if fs.count() < 2 {
		t.Fatalf("expected final flush on Close; got %d submissions", fs.count())
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() err=%v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.IncCounter(metrics.StageTotal, 1, metrics.Labels{"stage": "load", "status": "ok"})
				b.ObserveHistogram(metrics.StageDurationSeconds, 0.01, metrics.Labels{"stage": "load", "status": "ok"})
			}
		}()
	}
	wg.Wait()

	if got := b.buf.stageCounts["load\x00ok"]; got != 800 {
		t.Fatalf("stage count=%v, want 800", got)
	}
	if got := len(b.buf.stageSamples["load\x00ok"]); got != 800 {
		t.Fatalf("samples=%d, want 800", got)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5}
	cases := map[float64]float64{0: 1, 0.5: 3, 0.9: 5, 1: 5}
	for p, want := range cases {
		if got := percentileNearestRank(s, p); got != want {
			t.Fatalf("p%.2f=%v want %v", p, got, want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty=%v", got)
	}
}

func TestSplitStageKey(t *testing.T) {
	stage, status := splitStageKey(stageKey(metrics.Labels{"stage": "census"}))
	if stage != "census" || status != "unknown" {
		t.Fatalf("got %q %q", stage, status)
	}
	stage, status = splitStageKey("bare")
	if stage != "bare" || status != "unknown" {
		t.Fatalf("got %q %q", stage, status)
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod, ,team:mobility ")
	if !reflect.DeepEqual(got, []string{"env:prod", "team:mobility"}) {
		t.Fatalf("ParseTagsCSV=%v", got)
	}
	if ParseTagsCSV("") != nil {
		t.Fatalf("empty should be nil")
	}
}
