package mssql

import "evdemand/internal/storage"

func init() {
	storage.Register("mssql", NewPanelRepo)
}
