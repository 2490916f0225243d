//go:build !canopy_cgo_sqlite

package feedback

import (
	_ "modernc.org/sqlite" // pure-Go SQLite driver, default build
)

// driverName is the database/sql driver name registered for this build. It
// mirrors internal/store's dual-driver selection so a process picks the
// same driver for both the index and the feedback database.
const driverName = "sqlite"
