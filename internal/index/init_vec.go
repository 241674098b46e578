package index

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers sqlite-vec as an auto-loaded extension on every new
	// mattn/go-sqlite3 connection.
	vec.Auto()
}
