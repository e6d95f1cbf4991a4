// Package tests holds fixtures shared by package tests.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"handler_runner/config"
	"handler_runner/db"
)

// fixture is one table of the shared test database.
type fixture struct {
	table  string
	create string
	insert string
}

var fixtures = []fixture{
	{
		table:  "tables",
		create: `CREATE TABLE tables (name TEXT PRIMARY KEY, rows INTEGER, size INTEGER)`,
		insert: `INSERT INTO tables (name, rows, size) VALUES
			('users', 1250, 5120),
			('orders', 5432, 25600),
			('products', 842, 3200),
			('categories', 50, 512)`,
	},
	{
		table:  "metrics",
		create: `CREATE TABLE metrics (name TEXT, value REAL, timestamp INTEGER)`,
		insert: `INSERT INTO metrics (name, value, timestamp) VALUES
			('cpu_usage', 45.2, strftime('%s','now')),
			('memory_usage', 62.8, strftime('%s','now')),
			('disk_usage', 78.5, strftime('%s','now')),
			('network_in', 1250.45, strftime('%s','now')),
			('network_out', 876.23, strftime('%s','now'))`,
	},
	{
		// Text columns that look like other types end up as labels verbatim.
		table:  "special_types_table",
		create: `CREATE TABLE special_types_table (name TEXT, guid_val TEXT, decimal_val TEXT, value INTEGER)`,
		insert: `INSERT INTO special_types_table (name, guid_val, decimal_val, value) VALUES
			('item1', 'f47ac10b-58cc-4372-a567-0e02b2c3d479', '123.456', 1),
			('item2', '01234567-89ab-cdef-fedc-ba9876543210', '7890.12', 2)`,
	},
}

// ConnOptions are the pool options fixtures are opened with.
func ConnOptions() config.ConnectionOptions {
	return config.ConnectionOptions{
		MaxConns:     5,
		MaxIdleConns: 2,
		DriverParams: map[string]map[string]string{
			"sqlite": {"_busy_timeout": "5000"},
		},
		ConnectTimeout: config.Duration(10 * time.Second),
		QueryTimeout:   config.Duration(60 * time.Second),
	}
}

// SetupTestDB creates a SQLite database file filled with the fixtures. It
// returns an open connection, the file path for handlers that open their own
// pool, and a cleanup func. The file lives in t.TempDir.
func SetupTestDB(t *testing.T) (*db.Connection, string, func()) {
	t.Helper()
	path := filepath.ToSlash(filepath.Join(t.TempDir(), "fixture.db"))

	conn, err := db.Open(context.Background(), path, ConnOptions())
	if err != nil {
		t.Fatalf("Failed to open test database (%s): %v", path, err)
	}

	for _, f := range fixtures {
		for _, stmt := range []string{"DROP TABLE IF EXISTS " + f.table, f.create, f.insert} {
			if _, err := conn.DB.Exec(stmt); err != nil {
				conn.Close()
				t.Fatalf("Failed to prepare table %s in %s: %v", f.table, path, err)
			}
		}
	}

	var once bool
	cleanup := func() {
		if once {
			return
		}
		once = true
		conn.Close()
	}
	t.Cleanup(cleanup)
	return conn, path, cleanup
}

// CreateLargeTable creates a table with rowCount rows for stress testing.
func CreateLargeTable(t *testing.T, sqlDB *sql.DB, tableName string, rowCount int) {
	t.Helper()
	if _, err := sqlDB.Exec("DROP TABLE IF EXISTS " + tableName); err != nil {
		t.Fatalf("Failed to drop large table %s: %v", tableName, err)
	}

	tx, err := sqlDB.Begin()
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	create := fmt.Sprintf(`CREATE TABLE %s (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, value REAL)`, tableName)
	if _, err := tx.Exec(create); err != nil {
		t.Fatalf("Failed to create large table %s: %v", tableName, err)
	}

	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (name, value) VALUES (?, ?)", tableName))
	if err != nil {
		t.Fatalf("Failed to prepare insert statement for %s: %v", tableName, err)
	}
	defer stmt.Close()

	for i := 0; i < rowCount; i++ {
		if _, err := stmt.Exec(fmt.Sprintf("item_%d", i), float64(i)*1.1); err != nil {
			t.Fatalf("Failed to insert row %d into %s: %v", i, tableName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit transaction for %s: %v", tableName, err)
	}
	t.Logf("Created table %s with %d rows", tableName, rowCount)
}
