//go:build !sqlite_vec || !cgo

package belief

import (
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// sqliteDriverName selects the database/sql driver compiled into this build.
// The default build uses the pure-Go modernc driver so dnerd runs without
// cgo; similarity search falls back to an in-process cosine scan.
const sqliteDriverName = "sqlite"
