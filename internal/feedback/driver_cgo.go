//go:build canopy_cgo_sqlite

package feedback

import (
	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, opt-in build
)

// driverName is the database/sql driver name registered for this build.
// Selected via `go build -tags canopy_cgo_sqlite`.
const driverName = "sqlite3"
