package config

import (
	"database/sql"
	"strings"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// sqliteDriverName is go-sqlite3 with a Unicode aware lower(). The builtin only
// folds ASCII, so title search would miss non-Latin text.
const sqliteDriverName = "sqlite3_newspaper"

var registerSQLite sync.Once

func registerSQLiteDriver() {
	registerSQLite.Do(func() {
		sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("lower", unicodeLower, true)
			},
		})
	})
}

// unicodeLower passes NULL and non-text values through untouched, like the builtin.
func unicodeLower(v interface{}) interface{} {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		return strings.ToLower(string(s))
	default:
		return v
	}
}
