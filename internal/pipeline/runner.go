// Package pipeline runs one panel build end to end:
//
//	load stations -> normalize -> write interim
//	load sessions -> normalize -> write interim
//	load registrations -> normalize
//	merge (demographics fetched once) -> write panel -> optional SQL sink
//
// Every stage is timed, logged and counted. The first failure stops the
// build and is returned as a *StageError.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"evdemand/internal/census"
	"evdemand/internal/config"
	"evdemand/internal/exporter"
	"evdemand/internal/merge"
	"evdemand/internal/metrics"
	"evdemand/internal/normalize"
	pcsv "evdemand/internal/parser/csv"
	pxlsx "evdemand/internal/parser/xlsx"
	"evdemand/internal/schema"
	"evdemand/internal/storage"
	"evdemand/internal/table"
)

// Stage names used in logs, metrics and StageError.
const (
	StageLoadStations      = "load_stations"
	StageNormalizeStations = "normalize_stations"
	StageLoadSessions      = "load_sessions"
	StageNormalizeSessions = "normalize_sessions"
	StageLoadRegistrations = "load_registrations"
	StageNormalizeRegs     = "normalize_registrations"
	StageWriteInterim      = "write_interim"
	StageMerge             = "merge"
	StageWritePanel        = "write_panel"
	StageSink              = "sink"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner wires the stages together. The factory fields are seams for tests.
type Runner struct {
	Logger     Logger
	Normalizer *normalize.Normalizer

	NewFetcher    func(cfg config.Build) census.Fetcher
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.PanelRepository, error)

	// RunID tags logs; a random UUID is used when empty.
	RunID string
}

// Result summarises a successful build.
type Result struct {
	RunID     string
	Paths     config.Paths
	PanelRows int
	SinkRows  int64
}

// NewDefaultRunner returns a Runner backed by the live Census client and the
// registered storage backends.
func NewDefaultRunner(logger Logger) *Runner {
	states := normalize.NewStateTable()
	return &Runner{
		Logger:     logger,
		Normalizer: normalize.New(states),
		NewFetcher: func(cfg config.Build) census.Fetcher {
			return &census.Client{
				BaseURL: cfg.Census.URL,
				APIKey:  cfg.Census.APIKey,
				Timeout: cfg.Census.Timeout,
				States:  states,
			}
		},
		NewRepository: storage.New,
	}
}

// Run executes one build.
func (r *Runner) Run(ctx context.Context, cfg config.Build) (Result, error) {
	runID := r.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if r.Normalizer == nil {
		r.Normalizer = normalize.New(normalize.NewStateTable())
	}
	if r.NewFetcher == nil {
		return Result{}, fmt.Errorf("pipeline: NewFetcher is required")
	}

	logf := r.logger()
	paths := cfg.Paths()
	res := Result{RunID: runID, Paths: paths}
	buildStart := time.Now()
	logf("stage=build run_id=%s start data_dir=%s", runID, cfg.DataDir)

	// stage runs fn, then logs and counts the outcome.
	stage := func(name, source string, fn func() (int, error)) error {
		start := time.Now()
		n, err := fn()
		d := durMS(start)
		metrics.RecordStage(name, err, d)
		if err != nil {
			logf("stage=%s run_id=%s status=error source=%s duration=%s err=%v", name, runID, source, d, err)
			return &StageError{Stage: name, Source: source, Err: err}
		}
		logf("stage=%s run_id=%s ok rows=%d duration=%s", name, runID, n, d)
		return nil
	}

	var rawStations, stations, rawSessions, sessions, rawRegs, regs, panel *table.Table
	csvOpts := pcsv.Options{Comma: cfg.CSV.Comma(), LazyQuotes: cfg.CSV.LazyQuotes}

	steps := []struct {
		name, source string
		fn           func() (int, error)
	}{
		{StageLoadStations, paths.Stations, func() (n int, err error) {
			rawStations, err = r.load(ctx, csvOpts, paths.Stations, "stations")
			return rowsOf(rawStations), err
		}},
		{StageNormalizeStations, "", func() (n int, err error) {
			stations, err = r.Normalizer.Stations(rawStations)
			return rowsOf(stations), err
		}},
		{StageWriteInterim, paths.InterimStations, func() (int, error) {
			return stations.Len(), exporter.WriteCSVFile(paths.InterimStations, stations)
		}},
		{StageLoadSessions, paths.Sessions, func() (n int, err error) {
			rawSessions, err = r.load(ctx, csvOpts, paths.Sessions, "sessions")
			return rowsOf(rawSessions), err
		}},
		{StageNormalizeSessions, "", func() (n int, err error) {
			sessions, err = r.Normalizer.Sessions(rawSessions)
			return rowsOf(sessions), err
		}},
		{StageWriteInterim, paths.InterimSessions, func() (int, error) {
			return sessions.Len(), exporter.WriteCSVFile(paths.InterimSessions, sessions)
		}},
		{StageLoadRegistrations, paths.Registrations, func() (n int, err error) {
			rawRegs, err = r.load(ctx, csvOpts, paths.Registrations, "registrations")
			return rowsOf(rawRegs), err
		}},
		{StageNormalizeRegs, "", func() (n int, err error) {
			regs, err = r.Normalizer.Registrations(rawRegs)
			return rowsOf(regs), err
		}},
		{StageMerge, "", func() (n int, err error) {
			engine := &merge.Engine{
				Demographics: census.NewMemo(r.NewFetcher(cfg)),
				Logger:       r.Logger,
			}
			panel, err = engine.Build(ctx, sessions, stations, regs)
			return rowsOf(panel), err
		}},
		{StageWritePanel, paths.Panel, func() (int, error) {
			return panel.Len(), writePanel(paths.Panel, cfg.Output.Format, panel)
		}},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return res, &StageError{Stage: s.name, Source: s.source, Err: err}
		}
		if err := stage(s.name, s.source, s.fn); err != nil {
			return res, err
		}
	}
	res.PanelRows = panel.Len()
	metrics.RecordRows("stations", stations.Len())
	metrics.RecordRows("sessions", sessions.Len())
	metrics.RecordRows("registrations", regs.Len())
	metrics.RecordRows("panel", panel.Len())

	if sink := cfg.Output.Sink; sink.Kind != "" {
		err := stage(StageSink, sink.Kind+":"+sink.Table, func() (int, error) {
			n, err := r.sink(ctx, sink, panel)
			res.SinkRows = n
			return int(n), err
		})
		if err != nil {
			return res, err
		}
	}

	logf("stage=build run_id=%s ok panel_rows=%d output=%s duration=%s", runID, res.PanelRows, paths.Panel, durMS(buildStart))
	return res, nil
}

// load reads path with the reader its extension selects. Malformed CSV
// rows are logged and skipped.
func (r *Runner) load(ctx context.Context, opt pcsv.Options, path, name string) (*table.Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return pxlsx.ReadFile(ctx, path, name, "")
	}
	logf := r.logger()
	return pcsv.ReadFile(ctx, path, name, opt, func(line int, err error) {
		logf("stage=load source=%s line=%d skipped err=%v", path, line, err)
	})
}

func (r *Runner) sink(ctx context.Context, cfg config.Sink, panel *table.Table) (int64, error) {
	if r.NewRepository == nil {
		return 0, fmt.Errorf("pipeline: NewRepository is required for sink kind=%s", cfg.Kind)
	}
	repo, err := r.NewRepository(ctx, storage.Config{Kind: cfg.Kind, DSN: cfg.DSN})
	if err != nil {
		return 0, err
	}
	defer repo.Close()
	return storage.Save(ctx, repo, cfg.Table, panel, schema.ColState, schema.ColYear, schema.ColMonth)
}

func writePanel(path, format string, panel *table.Table) error {
	if strings.EqualFold(format, "xlsx") {
		return exporter.WriteXLSXFile(path, exporter.DefaultSheet, panel)
	}
	return exporter.WriteCSVFile(path, panel)
}

func rowsOf(t *table.Table) int {
	if t == nil {
		return 0
	}
	return t.Len()
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return r.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
