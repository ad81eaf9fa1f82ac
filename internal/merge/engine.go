// Package merge assembles the state-month panel: the session-month spine
// left-joined with registrations, station inventory and demographics, plus
// derived ratio features.
package merge

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"evdemand/internal/aggregate"
	"evdemand/internal/census"
	"evdemand/internal/normalize"
	"evdemand/internal/nullable"
	"evdemand/internal/schema"
	"evdemand/internal/table"
)

// Derived panel columns.
const (
	ColAdoptionRatio     = "adoption_ratio"
	ColInfraBalanceRatio = "infra_balance_ratio"
	ColMonthLabelNice    = "month_label_nice"
)

// Logger is the minimal logging interface used by the engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Engine runs the single forward pass normalize output -> aggregate x3 ->
// join x3 -> derive.
type Engine struct {
	// Demographics supplies the state lookup. It is called once per Build.
	Demographics census.Fetcher
	Logger       Logger
}

// Build produces the panel from normalised sessions, stations and
// registrations.
//
// Row identity: the result has exactly one row per (state, Year, Month)
// group of the session spine. Joins never drop or duplicate spine rows;
// unmatched rows carry nulls. Registrations match on the exact year.
//
// Errors:
//   - Demographics is nil or its Fetch fails (fatal, not retried).
//   - ctx is done between stages.
func (e *Engine) Build(ctx context.Context, sessions, stations, regs *table.Table) (*table.Table, error) {
	if e.Demographics == nil {
		return nil, fmt.Errorf("merge: Demographics is required")
	}
	logf := e.logger()

	start := time.Now()
	panel := aggregate.StateMonth(sessions)
	regAgg := aggregate.Registrations(regs)
	stAgg := aggregate.Stations(stations)
	logf("stage=aggregate ok spine_rows=%d reg_rows=%d station_rows=%d duration=%s",
		panel.Len(), regAgg.Len(), stAgg.Len(), durMS(start))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fetchStart := time.Now()
	demo, err := e.Demographics.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	logf("stage=demographics ok rows=%d duration=%s", demo.Len(), durMS(fetchStart))
	demo = demo.Select(schema.ColState, census.ColStateName, census.ColPopulation, census.ColMedianIncome)

	joinStart := time.Now()
	steps := []struct {
		right *table.Table
		on    []table.JoinKey
	}{
		{regAgg, []table.JoinKey{{Left: schema.ColState, Right: schema.ColState}, {Left: schema.ColYear, Right: schema.ColRegYear}}},
		{stAgg, table.On(schema.ColState)},
		{demo, table.On(schema.ColState)},
	}
	for _, s := range steps {
		if panel, err = table.LeftJoin(panel, s.right, s.on); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}
	logf("stage=join ok rows=%d duration=%s", panel.Len(), durMS(joinStart))

	Derive(panel)
	return panel, nil
}

// Derive adds adoption_ratio = ev_regs / POPULATION,
// infra_balance_ratio = num_stations / ev_regs and month_label_nice.
//
// Ratios use plain float division: a zero denominator gives +/-Inf, a null
// operand (or an absent operand column) gives null. Nothing is clamped.
func Derive(panel *table.Table) {
	panel.AddColumn(ColAdoptionRatio)
	panel.AddColumn(ColInfraBalanceRatio)
	panel.AddColumn(ColMonthLabelNice)
	for i, r := range panel.Rows {
		evRegs := panel.Float(i, aggregate.ColEVRegs)
		r[ColAdoptionRatio] = nullable.Div(evRegs, panel.Float(i, census.ColPopulation))
		r[ColInfraBalanceRatio] = nullable.Div(panel.Float(i, aggregate.ColNumStations), evRegs)

		year, okY := panel.Float(i, schema.ColYear).Int()
		month, okM := panel.Float(i, schema.ColMonth).Int()
		if nice := normalize.NiceMonthLabel(year, month); okY && okM && nice != "" {
			r[ColMonthLabelNice] = nice
		} else {
			r[ColMonthLabelNice] = nil
		}
	}
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return e.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
