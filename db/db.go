package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"handler_runner/config"
	dberrors "handler_runner/errors"

	"github.com/xo/dburl"

	// Import SQL drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb/azuread"
	_ "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"
)

// Connection is a pooled database handle and the options it was opened with.
// It is safe for concurrent use.
type Connection struct {
	DB     *sql.DB
	Config config.ConnectionOptions
}

// New wraps an already opened *sql.DB.
func New(sqlDB *sql.DB, connOpts config.ConnectionOptions) *Connection {
	return &Connection{DB: sqlDB, Config: connOpts}
}

// SafeParse wraps dburl.Parse method to prevent leaking credentials in error messages
func SafeParse(rawURL string) (*dburl.URL, error) {
	expandedURL := os.ExpandEnv(rawURL)
	parsed, err := dburl.Parse(expandedURL)
	if err != nil {
		if uerr := new(url.Error); errors.As(err, &uerr) {
			return nil, fmt.Errorf("invalid DSN (underlying error: %w)", uerr.Err)
		}
		return nil, fmt.Errorf("invalid DSN (dburl.Parse error: %w)", err)
	}
	return parsed, nil
}

// IsSQLite reports whether dbType names the SQLite driver.
func IsSQLite(dbType string) bool {
	t := strings.ToLower(dbType)
	return t == "sqlite" || t == "sqlite3"
}

// BuildDSN constructs a data source name (connection string) based on the database type and parameters
func BuildDSN(dbType, username, password, host, port, database string) (string, error) {
	withPort := func(def string) string {
		if port != "" {
			return port
		}
		return def
	}

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if database == "" {
			return "", errors.New("database path cannot be empty for SQLite")
		}
		// Plain path; Open adds the scheme dburl needs.
		return database, nil
	case "pg", "postgres", "postgresql":
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", username, password, host, withPort("5432"), database), nil
	case "oracle":
		return fmt.Sprintf("oracle://%s:%s@%s:%s/%s", username, password, host, withPort("1521"), database), nil
	case "sqlserver", "mssql":
		return fmt.Sprintf("sqlserver://%s:%s@%s:%s?database=%s", username, password, host, withPort("1433"), database), nil
	default:
		dsn := fmt.Sprintf("%s://%s:%s@%s:%s/%s", dbType, username, password, host, port, database)
		u, err := dburl.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("failed to parse constructed DSN: %w", err)
		}
		return u.String(), nil
	}
}

// looksLikeSQLitePath reports whether a scheme-less DSN is a SQLite file path.
func looksLikeSQLitePath(dsn string) bool {
	if strings.Contains(dsn, "://") {
		return false
	}
	lower := strings.ToLower(dsn)
	return strings.HasSuffix(lower, ".db") ||
		strings.HasSuffix(lower, ".sqlite") ||
		strings.HasSuffix(lower, ".sqlite3") ||
		strings.Contains(lower, "sqlite") ||
		strings.HasSuffix(dsn, ":memory:")
}

// resolve turns a DSN into the driver name and driver-specific DSN to hand to
// sql.Open, merging per-driver parameters from connOpts.
func resolve(dsn string, connOpts config.ConnectionOptions) (driver, driverDSN string, err error) {
	originalDSN := dsn
	if looksLikeSQLitePath(dsn) {
		dsn = "sqlite://" + dsn
	}

	parsedURL, err := SafeParse(dsn)
	if err != nil {
		return "", "", dberrors.NewDBError(fmt.Sprintf("failed to parse DSN '%s' (original DSN was '%s'): %v", dsn, originalDSN, err))
	}

	queryValues, err := url.ParseQuery(parsedURL.RawQuery)
	if err != nil {
		return "", "", dberrors.NewDBError(fmt.Sprintf("failed to parse DSN query parameters from '%s': %v", parsedURL.RawQuery, err))
	}

	// dburl reports "sqlite3" for the sqlite scheme; modernc registers "sqlite".
	lookupDriver := strings.ToLower(parsedURL.Driver)
	if lookupDriver == "sqlite3" {
		lookupDriver = "sqlite"
	}
	for key, value := range connOpts.DriverParams[lookupDriver] {
		queryValues.Set(key, value)
	}
	parsedURL.RawQuery = queryValues.Encode()

	driver = parsedURL.Driver
	if parsedURL.GoDriver != "" {
		driver = parsedURL.GoDriver
	}
	if driver == "sqlite3" {
		driver = "sqlite"
	}

	if driver == "sqlite" {
		driverDSN = parsedURL.DSN
		if parsedURL.RawQuery != "" {
			driverDSN += "?" + parsedURL.RawQuery
		}
		return driver, driverDSN, nil
	}
	return driver, parsedURL.String(), nil
}

// Open opens a pooled database connection and pings it unless NoPing is set.
// Nothing is left open when it returns an error.
func Open(ctx context.Context, dsn string, connOpts config.ConnectionOptions) (*Connection, error) {
	driver, driverDSN, err := resolve(dsn, connOpts)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, driverDSN)
	if err != nil {
		return nil, dberrors.NewDBError(fmt.Sprintf("failed to open database connection (driver: %s): %v", driver, err))
	}

	sqlDB.SetMaxOpenConns(connOpts.MaxConns)
	sqlDB.SetMaxIdleConns(connOpts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(connOpts.MaxConnLifetime.ToStd())

	conn := New(sqlDB, connOpts)
	if !connOpts.NoPing {
		if err := conn.Ping(ctx); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	return conn, nil
}

// Ping checks the connection within ConnectTimeout.
func (c *Connection) Ping(ctx context.Context) error {
	if c.DB == nil {
		return dberrors.NewDBError("database connection is nil")
	}
	if timeout := c.Config.ConnectTimeout.ToStd(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.DB.PingContext(ctx); err != nil {
		return dberrors.NewDBError(fmt.Sprintf("ping failed: %v", err))
	}
	return nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// ExecuteQuery runs the SQL query and returns the results
func (c *Connection) ExecuteQuery(ctx context.Context, query string) (*sql.Rows, error) {
	if c.DB == nil {
		return nil, dberrors.NewDBError("database connection is nil")
	}

	if c.Config.PreparedStmts {
		stmt, err := c.DB.PrepareContext(ctx, query)
		if err != nil {
			return nil, wrapQueryErr("prepare query failed", err)
		}
		defer stmt.Close()
		rows, err := stmt.QueryContext(ctx)
		if err != nil {
			return nil, wrapQueryErr("execute prepared query failed", err)
		}
		return rows, nil
	}

	rows, err := c.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapQueryErr("execute query failed", err)
	}
	return rows, nil
}

func wrapQueryErr(msg string, err error) error {
	return dberrors.NewQueryError(fmt.Sprintf("%s: %v", msg, err)).WithCause(err)
}
