//go:build sqlite_vec && cgo

package runstore

import (
	_ "github.com/mattn/go-sqlite3"
)

// sqliteDriverName matches the driver the belief store compiles against so
// one binary carries exactly one SQLite implementation. The vec extension
// itself is registered by the belief package's init.
const sqliteDriverName = "sqlite3"
