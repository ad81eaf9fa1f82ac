// Package normalize converts raw source tables into their canonical shape:
// consistent column names, upper-case two-letter state codes, coerced
// numerics, filled categorical defaults and decomposed timestamps.
//
// Normalization is a pure transform. Malformed values become nulls; absent
// optional columns are omitted. Nothing here fails because of the data.
package normalize

import (
	"fmt"
	"strings"

	"evdemand/internal/nullable"
	"evdemand/internal/schema"
	"evdemand/internal/table"
	"evdemand/pkg/records"
)

// demandDurationWeight scales charge_duration in the per-session demand score.
const demandDurationWeight = 0.1

// Normalizer applies schema descriptors to raw tables. It owns the state
// lookup used for every name -> code conversion.
type Normalizer struct {
	states StateTable
}

// New returns a Normalizer that resolves state names through states.
func New(states StateTable) *Normalizer {
	return &Normalizer{states: states}
}

// Apply projects raw onto d.
//
// Behavior:
//   - Raw header names are compared lower-cased and trimmed.
//   - Only fields whose source column is present are kept, renamed to their
//     canonical name, in descriptor order. Unknown raw columns are ignored.
//   - Fields with a Default are always emitted.
//   - StateName fields additionally produce a derived "state" code column.
//   - When d.TimeColumn is present it is decomposed by AddTimeParts.
//
// Errors:
//   - Returns an error only when raw is nil.
func (n *Normalizer) Apply(d schema.Descriptor, raw *table.Table) (*table.Table, error) {
	if raw == nil {
		return nil, fmt.Errorf("normalize %s: nil table", d.Name)
	}

	srcIndex := make(map[string]string, len(raw.Columns))
	for _, c := range raw.Columns {
		key := strings.ToLower(strings.TrimSpace(c))
		if _, dup := srcIndex[key]; !dup {
			srcIndex[key] = c
		}
	}

	type binding struct {
		field  schema.Field
		rawCol string
		ok     bool
	}
	var (
		bound       []binding
		deriveState bool
	)
	out := table.New(d.Name)
	for _, f := range d.Fields {
		rawCol, ok := srcIndex[f.Source]
		if !ok && f.Default == "" {
			continue
		}
		bound = append(bound, binding{field: f, rawCol: rawCol, ok: ok})
		out.AddColumn(f.Canonical)
		if ok && f.Kind == schema.StateName {
			deriveState = true
		}
	}
	if deriveState {
		out.AddColumn(schema.ColState)
	}

	out.Rows = make([]records.Record, 0, len(raw.Rows))
	for _, r := range raw.Rows {
		rec := make(records.Record, len(out.Columns))
		for _, b := range bound {
			var v any
			if b.ok {
				v = r[b.rawCol]
			}
			n.coerce(rec, b.field, v)
		}
		out.Rows = append(out.Rows, rec)
	}

	if d.TimeColumn != "" {
		AddTimeParts(out, d.TimeColumn)
	}
	return out, nil
}

func (n *Normalizer) coerce(rec records.Record, f schema.Field, v any) {
	s, isString := v.(string)
	if isString {
		s = strings.TrimSpace(s)
	}

	switch f.Kind {
	case schema.Numeric:
		rec[f.Canonical] = nullable.FromAny(v)

	case schema.State:
		if !isString || s == "" {
			rec[f.Canonical] = nil
			return
		}
		rec[f.Canonical] = strings.ToUpper(s)

	case schema.StateName:
		if !isString || s == "" {
			rec[f.Canonical] = nil
			rec[schema.ColState] = nil
			return
		}
		rec[f.Canonical] = s
		if code := n.states.Code(s); code != "" {
			rec[schema.ColState] = code
		} else {
			rec[schema.ColState] = nil
		}

	default:
		switch {
		case isString && s != "":
			rec[f.Canonical] = s
		case !isString && v != nil:
			rec[f.Canonical] = v
		case f.Default != "":
			rec[f.Canonical] = f.Default
		default:
			rec[f.Canonical] = nil
		}
	}
}

// Sessions normalizes a session extract and derives demand_score.
func (n *Normalizer) Sessions(raw *table.Table) (*table.Table, error) {
	t, err := n.Apply(schema.Sessions, raw)
	if err != nil {
		return nil, err
	}
	AddDemandScore(t)
	return t, nil
}

// Stations normalizes a station inventory extract.
func (n *Normalizer) Stations(raw *table.Table) (*table.Table, error) {
	return n.Apply(schema.Stations, raw)
}

// Registrations normalizes a registration extract and derives state codes
// from full state names.
func (n *Normalizer) Registrations(raw *table.Table) (*table.Table, error) {
	return n.Apply(schema.Registrations, raw)
}

// AddDemandScore derives demand_score = energy_kwh + 0.1*charge_duration per
// row. Nulls count as zero here (and only here) so one missing input does
// not null the whole score. The column is added only when both inputs are
// present in the schema.
func AddDemandScore(t *table.Table) {
	if t == nil || !t.HasAll(schema.ColEnergy, schema.ColChargeDuration) {
		return
	}
	t.AddColumn(schema.ColDemandScore)
	for i, r := range t.Rows {
		e := t.Float(i, schema.ColEnergy).OrZero()
		c := t.Float(i, schema.ColChargeDuration).OrZero()
		r[schema.ColDemandScore] = nullable.Of(e + demandDurationWeight*c)
	}
}
