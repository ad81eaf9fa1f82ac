package postgres

import "evdemand/internal/storage"

func init() {
	// registers the panel backend factory
	storage.Register("postgres", NewPanelRepo)
}
