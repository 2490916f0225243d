//go:build !canopy_cgo_sqlite

package store

import (
	_ "modernc.org/sqlite" // pure-Go SQLite driver, default build
)

// driverName is the database/sql driver name registered for this build.
// The pure-Go modernc.org/sqlite driver is the default so `go build` needs
// no C toolchain; build with -tags canopy_cgo_sqlite to link mattn's cgo
// driver instead (faster under heavy concurrent load, at the cost of CGO).
const driverName = "sqlite"
