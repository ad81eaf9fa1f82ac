package merge

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evdemand/internal/aggregate"
	"evdemand/internal/census"
	"evdemand/internal/normalize"
	"evdemand/internal/nullable"
	"evdemand/internal/table"
	"evdemand/pkg/records"
)

type staticFetcher struct {
	t     *table.Table
	err   error
	calls int
}

func (f *staticFetcher) Fetch(context.Context) (*table.Table, error) {
	f.calls++
	return f.t, f.err
}

func raw(cols []string, rows ...[]any) *table.Table {
	t := table.New("raw", cols...)
	for _, vals := range rows {
		r := records.Record{}
		for i, c := range cols {
			r[c] = vals[i]
		}
		t.Append(r)
	}
	return t
}

func demographics(rows ...[]any) *table.Table {
	return raw([]string{"state", census.ColStateName, census.ColPopulation, census.ColMedianIncome}, rows...)
}

type fixture struct {
	sessions, stations, regs *table.Table
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	n := normalize.New(normalize.NewStateTable())
	s, err := n.Sessions(raw([]string{"state", "start_datetime", "energy_kwh", "charge_duration"},
		[]any{"CA", "2023-03-01", "10", "1"},
		[]any{"CA", "2023-04-01", "10", "1"},
		[]any{"NV", "2023-03-01", "5", "0"},
		[]any{"ZZ", "2023-03-01", "5", "0"},
		[]any{"WA", "2022-06-01", "1", "0"},
	))
	require.NoError(t, err)
	st, err := n.Stations(raw([]string{"id", "state", "ev_level2_evse_num"},
		[]any{"1", "CA", "4"},
		[]any{"2", "CA", "2"},
		[]any{"3", "NV", "1"},
	))
	require.NoError(t, err)
	rg, err := n.Registrations(raw([]string{"state", "year", "electric_vehicle_reg_count"},
		[]any{"California", "2023", "200"},
		[]any{"California", "2022", "100"},
		[]any{"Nevada", "2023", "0"},
		[]any{"Washington", "2023", "50"},
	))
	require.NoError(t, err)
	return fixture{s, st, rg}
}

func rowFor(t *testing.T, panel *table.Table, state, label string) records.Record {
	t.Helper()
	for _, r := range panel.Rows {
		if r["state"] == state && r["month_label"] == label {
			return r
		}
	}
	t.Fatalf("no row %s %s", state, label)
	return nil
}

func TestBuild_PreservesSpineRows(t *testing.T) {
	fx := newFixture(t)
	demo := &staticFetcher{t: demographics(
		[]any{"CA", "California", nullable.Of(1000), nullable.Of(90000)},
		[]any{"CA", "California (dup)", nullable.Of(1), nullable.Of(1)},
		[]any{"NV", "Nevada", nullable.Of(0), nullable.Null},
		[]any{nil, "Puerto Rico", nullable.Of(3), nullable.Of(3)},
	)}
	e := &Engine{Demographics: demo}

	panel, err := e.Build(context.Background(), fx.sessions, fx.stations, fx.regs)
	require.NoError(t, err)

	spine := aggregate.StateMonth(fx.sessions)
	require.Equal(t, spine.Len(), panel.Len(), "no fan-out, no loss")
	assert.Equal(t, 1, demo.calls)

	for i := range spine.Rows {
		assert.Equal(t, spine.Rows[i]["state"], panel.Rows[i]["state"])
		assert.Equal(t, spine.Rows[i]["month_label"], panel.Rows[i]["month_label"])
	}

	ca := rowFor(t, panel, "CA", "2023-03")
	assert.Equal(t, nullable.Of(200), ca[aggregate.ColEVRegs], "exact year match")
	assert.Equal(t, nullable.Of(2), ca[aggregate.ColNumStations])
	assert.Equal(t, nullable.Of(6), ca[aggregate.ColTotalL2])
	assert.Equal(t, nullable.Of(1000), ca[census.ColPopulation], "first demographic row wins")
	assert.Equal(t, nullable.Of(0.2), ca[ColAdoptionRatio])
	assert.Equal(t, nullable.Of(0.01), ca[ColInfraBalanceRatio])
	assert.Equal(t, "Mar, 2023", ca[ColMonthLabelNice])

	// demographics are constant across months
	assert.Equal(t, ca[census.ColPopulation], rowFor(t, panel, "CA", "2023-04")[census.ColPopulation])

	// unknown state code: every right column null
	zz := rowFor(t, panel, "ZZ", "2023-03")
	assert.Nil(t, zz[aggregate.ColEVRegs])
	assert.Nil(t, zz[aggregate.ColNumStations])
	assert.Nil(t, zz[census.ColPopulation])
	assert.Equal(t, nullable.Null, zz[ColAdoptionRatio])
	assert.Equal(t, nullable.Null, zz[ColInfraBalanceRatio])

	// no registration row for 2022 in WA: no nearest-year fallback
	wa := rowFor(t, panel, "WA", "2022-06")
	assert.Nil(t, wa[aggregate.ColEVRegs])
}

func TestBuild_DemographicsProjected(t *testing.T) {
	fx := newFixture(t)
	demo := raw([]string{"state", census.ColStateName, census.ColPopulation, census.ColMedianIncome, census.ColStateFIPS},
		[]any{"CA", "California", nullable.Of(1000), nullable.Of(90000), "06"},
	)
	e := &Engine{Demographics: &staticFetcher{t: demo}}
	panel, err := e.Build(context.Background(), fx.sessions, fx.stations, fx.regs)
	require.NoError(t, err)

	assert.False(t, panel.Has(census.ColStateFIPS))
	assert.True(t, panel.HasAll(census.ColStateName, census.ColPopulation, census.ColMedianIncome))
	ca := rowFor(t, panel, "CA", "2023-03")
	assert.NotContains(t, ca, census.ColStateFIPS)
	assert.Equal(t, "California", ca[census.ColStateName])
	assert.True(t, demo.Has(census.ColStateFIPS), "fetched table untouched")
}

func TestBuild_RatioEdgeCases(t *testing.T) {
	fx := newFixture(t)
	e := &Engine{Demographics: &staticFetcher{t: demographics(
		[]any{"NV", "Nevada", nullable.Of(0), nullable.Null},
	)}}
	panel, err := e.Build(context.Background(), fx.sessions, fx.stations, fx.regs)
	require.NoError(t, err)

	nv := rowFor(t, panel, "NV", "2023-03")
	// 0 regs / 0 population is NaN, reported as null
	assert.Equal(t, nullable.Null, nv[ColAdoptionRatio])
	// 1 station / 0 regs
	ib := nv[ColInfraBalanceRatio].(nullable.Float)
	require.True(t, ib.Valid)
	assert.True(t, math.IsInf(ib.V, 1))

	for i := range panel.Rows {
		for _, c := range []string{ColAdoptionRatio, ColInfraBalanceRatio} {
			f := panel.Float(i, c)
			assert.False(t, f.Valid && math.IsNaN(f.V), "NaN must surface as null")
		}
	}
}

func TestDerive_AbsentOperandColumns(t *testing.T) {
	panel := raw([]string{"state", "Year", "Month"}, []any{"CA", nullable.Of(2023), nullable.Null})
	Derive(panel)
	assert.True(t, panel.HasAll(ColAdoptionRatio, ColInfraBalanceRatio, ColMonthLabelNice))
	assert.Equal(t, nullable.Null, panel.Rows[0][ColAdoptionRatio])
	assert.Nil(t, panel.Rows[0][ColMonthLabelNice])
}

func TestBuild_DemographicFailureIsFatal(t *testing.T) {
	fx := newFixture(t)
	boom := &census.Error{Stage: census.StageStatus, StatusCode: 503}
	e := &Engine{Demographics: &staticFetcher{err: boom}}
	_, err := e.Build(context.Background(), fx.sessions, fx.stations, fx.regs)
	assert.True(t, errors.Is(err, boom))
}

func TestBuild_RequiresDemographics(t *testing.T) {
	fx := newFixture(t)
	_, err := (&Engine{}).Build(context.Background(), fx.sessions, fx.stations, fx.regs)
	assert.Error(t, err)
}

func TestBuild_EmptyRightTables(t *testing.T) {
	fx := newFixture(t)
	e := &Engine{Demographics: &staticFetcher{t: demographics()}}
	panel, err := e.Build(context.Background(), fx.sessions, table.New("stations"), table.New("registrations"))
	require.NoError(t, err)
	assert.Equal(t, aggregate.StateMonth(fx.sessions).Len(), panel.Len())
	assert.False(t, panel.Has(aggregate.ColEVRegs))
	assert.Equal(t, nullable.Null, panel.Float(0, ColAdoptionRatio))
}
