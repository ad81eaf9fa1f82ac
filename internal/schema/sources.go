package schema

// Column names shared across stages.
const (
	ColState      = "state"
	ColStateName  = "state_name"
	ColYear       = "Year"
	ColMonth      = "Month"
	ColDay        = "Day"
	ColHour       = "Hour"
	ColMonthLabel = "month_label"

	ColEnergy         = "energy_kwh"
	ColChargeDuration = "charge_duration"
	ColTotalDuration  = "total_duration"
	ColDemandScore    = "demand_score"

	ColStationID = "id"
	ColLevel2    = "ev_level2_evse_num"
	ColDCFast    = "ev_dc_fast_num"

	ColRegYear = "year"
	ColEVRegs  = "electric_vehicle_reg_count"
	ColPHEV    = "plug_in_hybrid_vehicle_reg_count"
	ColHEV     = "hybrid_electric_reg_count"
)

func f(name string, kind Kind) Field { return Field{Source: name, Canonical: name, Kind: kind} }

// Sessions describes an EV WATTS charging-session extract.
var Sessions = Descriptor{
	Name: "sessions",
	Fields: []Field{
		f("session_id", String),
		f("evse_id", String),
		f("start_datetime", Timestamp),
		f("end_datetime", Timestamp),
		f(ColTotalDuration, Numeric),
		f(ColChargeDuration, Numeric),
		f(ColEnergy, Numeric),
		f("connector_type", String),
		f("power_kw", Numeric),
		f("charge_level", String),
		f("pricing", String),
		f("region", String),
		f(ColState, State),
		f("metro_area", String),
		f("venue", String),
		f("num_ports", Numeric),
	},
	TimeColumn: "start_datetime",
}

// Stations describes an Alternative Fueling Stations extract.
var Stations = Descriptor{
	Name: "stations",
	Fields: []Field{
		f(ColStationID, String),
		f("station_name", String),
		f("city", String),
		f(ColState, State),
		f("street_address", String),
		f("zip", String),
		f("latitude", Numeric),
		f("longitude", Numeric),
		f("ev_connector_types", String),
		f("ev_level1_evse_num", Numeric),
		f(ColLevel2, Numeric),
		f(ColDCFast, Numeric),
		{Source: "ev_pricing", Canonical: "ev_pricing", Kind: String, Default: "UNSPECIFIED"},
		f("access_days_time", String),
		{Source: "facility_type", Canonical: "facility_type", Kind: String, Default: "UNKNOWN"},
		f("ev_network", String),
		f("date_last_confirmed", Timestamp),
	},
	TimeColumn: "date_last_confirmed",
}

// Registrations describes an AFDC vehicle-registration extract. The source
// "state" column carries full state names.
var Registrations = Descriptor{
	Name: "registrations",
	Fields: concat(
		[]Field{{Source: "state", Canonical: ColStateName, Kind: StateName}},
		same(Numeric, ColRegYear, ColEVRegs, ColPHEV, ColHEV),
	),
}
