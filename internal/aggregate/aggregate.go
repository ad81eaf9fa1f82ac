// Package aggregate reduces normalised source tables to their join grain:
// sessions to (state, Year, Month), stations to state, registrations to
// (state, year).
//
// Every reducer is presence-gated. A summary column is emitted only when the
// column it summarises exists; rows whose group key is null are left out.
// Output rows are sorted by key so builds are reproducible.
package aggregate

import (
	"sort"

	"evdemand/internal/normalize"
	"evdemand/internal/nullable"
	"evdemand/internal/schema"
	"evdemand/internal/table"
	"evdemand/pkg/records"
)

// Output columns.
const (
	ColEnergySum         = "energy_kwh_sum"
	ColChargeDurationSum = "charge_duration_sum"
	ColTotalDurationSum  = "total_duration_sum"
	ColDemandScoreSum    = "demand_score_sum"
	ColSessions          = "sessions"

	ColNumStations = "num_stations"
	ColTotalL2     = "total_l2"
	ColTotalDCFC   = "total_dcfc"

	ColEVRegs   = "ev_regs"
	ColPHEVRegs = "phev_regs"
	ColHEVRegs  = "hev_regs"
)

// sumSpec maps a source column onto the column holding its group sum.
type sumSpec struct {
	src, dst string
}

var (
	sessionSums = []sumSpec{
		{schema.ColEnergy, ColEnergySum},
		{schema.ColChargeDuration, ColChargeDurationSum},
		{schema.ColTotalDuration, ColTotalDurationSum},
		{schema.ColDemandScore, ColDemandScoreSum},
	}
	stationSums = []sumSpec{
		{schema.ColLevel2, ColTotalL2},
		{schema.ColDCFast, ColTotalDCFC},
	}
	registrationSums = []sumSpec{
		{schema.ColEVRegs, ColEVRegs},
		{schema.ColPHEV, ColPHEVRegs},
		{schema.ColHEV, ColHEVRegs},
	}
)

// present returns the specs whose source column exists in t.
func present(t *table.Table, specs []sumSpec) []sumSpec {
	var out []sumSpec
	for _, s := range specs {
		if t.Has(s.src) {
			out = append(out, s)
		}
	}
	return out
}

// groupKey is (state, year, month); unused parts stay zero.
type groupKey struct {
	state       string
	year, month int
}

func (k groupKey) less(o groupKey) bool {
	if k.state != o.state {
		return k.state < o.state
	}
	if k.year != o.year {
		return k.year < o.year
	}
	return k.month < o.month
}

type group struct {
	key   groupKey
	rows  int
	count int // non-null id values, for stations
	sums  []nullable.Sum
}

// grouper accumulates groups in first-seen order.
type grouper struct {
	index map[groupKey]*group
	order []*group
	width int
}

func newGrouper(width int) *grouper {
	return &grouper{index: make(map[groupKey]*group), width: width}
}

func (g *grouper) get(k groupKey) *group {
	if grp, ok := g.index[k]; ok {
		return grp
	}
	grp := &group{key: k, sums: make([]nullable.Sum, g.width)}
	g.index[k] = grp
	g.order = append(g.order, grp)
	return grp
}

func (g *grouper) sorted() []*group {
	out := append([]*group(nil), g.order...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].key.less(out[j].key) })
	return out
}

func stateOf(r records.Record) (string, bool) {
	s, ok := r[schema.ColState].(string)
	return s, ok && s != ""
}

func intOf(t *table.Table, i int, col string) (int, bool) {
	return t.Float(i, col).Int()
}

// StateMonth groups sessions by (state, Year, Month).
//
// Output columns: state, Year, Month, month_label, sessions, then
// energy_kwh_sum, charge_duration_sum, total_duration_sum and
// demand_score_sum for whichever sources are present. sessions counts every
// row in the group. Null values are skipped by the sums; an all-null group
// sums to 0.
//
// A table without state or time parts yields an empty spine with the key
// columns only.
func StateMonth(sessions *table.Table) *table.Table {
	out := table.New("state_month", schema.ColState, schema.ColYear, schema.ColMonth, schema.ColMonthLabel, ColSessions)
	if !sessions.HasAll(schema.ColState, schema.ColYear, schema.ColMonth) {
		return out
	}
	specs := present(sessions, sessionSums)
	for _, s := range specs {
		out.AddColumn(s.dst)
	}

	g := newGrouper(len(specs))
	for i, r := range sessions.Rows {
		state, ok := stateOf(r)
		if !ok {
			continue
		}
		year, okY := intOf(sessions, i, schema.ColYear)
		month, okM := intOf(sessions, i, schema.ColMonth)
		if !okY || !okM {
			continue
		}
		grp := g.get(groupKey{state: state, year: year, month: month})
		grp.rows++
		for j, s := range specs {
			grp.sums[j].Add(sessions.Float(i, s.src))
		}
	}

	for _, grp := range g.sorted() {
		rec := records.Record{
			schema.ColState:      grp.key.state,
			schema.ColYear:       nullable.Of(float64(grp.key.year)),
			schema.ColMonth:      nullable.Of(float64(grp.key.month)),
			schema.ColMonthLabel: normalize.MonthLabel(grp.key.year, grp.key.month),
			ColSessions:          nullable.Of(float64(grp.rows)),
		}
		for j, s := range specs {
			rec[s.dst] = grp.sums[j].Value()
		}
		out.Append(rec)
	}
	return out
}

// Stations groups the station inventory by state.
//
// num_stations counts non-null ids when the id column exists, otherwise rows.
// total_l2 and total_dcfc are emitted independently, each only when its port
// column is present; without either the summary is the station count alone.
func Stations(stations *table.Table) *table.Table {
	out := table.New("station_state", schema.ColState, ColNumStations)
	if !stations.Has(schema.ColState) {
		return out
	}
	specs := present(stations, stationSums)
	for _, s := range specs {
		out.AddColumn(s.dst)
	}
	hasID := stations.Has(schema.ColStationID)

	g := newGrouper(len(specs))
	for i, r := range stations.Rows {
		state, ok := stateOf(r)
		if !ok {
			continue
		}
		grp := g.get(groupKey{state: state})
		grp.rows++
		if hasID && r[schema.ColStationID] != nil {
			grp.count++
		}
		for j, s := range specs {
			grp.sums[j].Add(stations.Float(i, s.src))
		}
	}

	for _, grp := range g.sorted() {
		n := grp.rows
		if hasID {
			n = grp.count
		}
		rec := records.Record{
			schema.ColState: grp.key.state,
			ColNumStations:  nullable.Of(float64(n)),
		}
		for j, s := range specs {
			rec[s.dst] = grp.sums[j].Value()
		}
		out.Append(rec)
	}
	return out
}

// Registrations groups registrations by (state, year) and sums the EV, PHEV
// and HEV counts that are present.
func Registrations(regs *table.Table) *table.Table {
	out := table.New("registration_state_year", schema.ColState, schema.ColRegYear)
	if !regs.HasAll(schema.ColState, schema.ColRegYear) {
		return out
	}
	specs := present(regs, registrationSums)
	for _, s := range specs {
		out.AddColumn(s.dst)
	}

	g := newGrouper(len(specs))
	for i, r := range regs.Rows {
		state, ok := stateOf(r)
		if !ok {
			continue
		}
		year, ok := intOf(regs, i, schema.ColRegYear)
		if !ok {
			continue
		}
		grp := g.get(groupKey{state: state, year: year})
		for j, s := range specs {
			grp.sums[j].Add(regs.Float(i, s.src))
		}
	}

	for _, grp := range g.sorted() {
		rec := records.Record{
			schema.ColState:   grp.key.state,
			schema.ColRegYear: nullable.Of(float64(grp.key.year)),
		}
		for j, s := range specs {
			rec[s.dst] = grp.sums[j].Value()
		}
		out.Append(rec)
	}
	return out
}
