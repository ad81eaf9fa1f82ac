package config

import (
	"path/filepath"
	"strings"
)

// Default file names under DataDir.
const (
	SessionsFile      = "evsessions.csv"
	StationsFile      = "Alternative_Fueling_Stations.csv"
	RegistrationsFile = "afdc_vehicle_registrations.csv"

	InterimStationsFile = "afs_stations_clean.csv"
	InterimSessionsFile = "evsessions_clean.csv"
	PanelFile           = "state_month_agg"
)

// Paths are the resolved input and output locations of one build.
type Paths struct {
	Sessions      string
	Stations      string
	Registrations string

	InterimStations string
	InterimSessions string
	Panel           string
}

// Paths resolves file locations: inputs under DataDir/raw unless overridden,
// interim files under DataDir/interim and the panel under DataDir/processed
// with the extension of Output.Format.
func (b Build) Paths() Paths {
	raw := filepath.Join(b.DataDir, "raw")
	interim := filepath.Join(b.DataDir, "interim")
	processed := filepath.Join(b.DataDir, "processed")

	ext := ".csv"
	if strings.EqualFold(b.Output.Format, "xlsx") {
		ext = ".xlsx"
	}

	return Paths{
		Sessions:        orDefault(b.SessionsCSV, filepath.Join(raw, SessionsFile)),
		Stations:        orDefault(b.StationsCSV, filepath.Join(raw, StationsFile)),
		Registrations:   orDefault(b.RegistrationsCSV, filepath.Join(raw, RegistrationsFile)),
		InterimStations: filepath.Join(interim, InterimStationsFile),
		InterimSessions: filepath.Join(interim, InterimSessionsFile),
		Panel:           filepath.Join(processed, PanelFile+ext),
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
