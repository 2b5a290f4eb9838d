//go:build !sqlite_vec || !cgo

package runstore

import (
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// sqliteDriverName matches the driver the belief store compiles against so
// one binary carries exactly one SQLite implementation.
const sqliteDriverName = "sqlite"
