//go:build sqlite_vec && cgo

package belief

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteDriverName selects the database/sql driver compiled into this build.
// With the sqlite_vec tag the cgo mattn driver is used instead of modernc.
const sqliteDriverName = "sqlite3"

func init() {
	// Register sqlite-vec as an auto-loadable extension so every new
	// connection exposes vec_distance_cosine to SQL.
	vec.Auto()
}
