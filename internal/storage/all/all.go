// Package all links every panel storage backend and its database driver.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "evdemand/internal/storage/mssql"
	_ "evdemand/internal/storage/postgres"
	_ "evdemand/internal/storage/sqlite"
)
