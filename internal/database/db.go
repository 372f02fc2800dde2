package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits an existing dedup key
	ErrDuplicate = errors.New("duplicate")
	// ErrWatermarkConflict is returned when a watermark update would move it backwards
	ErrWatermarkConflict = errors.New("watermark conflict")
)

// DB wraps a sql.DB with a statement builder matching the driver's placeholder syntax
type DB struct {
	*sql.DB
	builder sq.StatementBuilderType
}

// New opens a PostgreSQL connection pool
func New(databaseURL string) (*DB, error) {
	return Open("postgres", databaseURL)
}

// Open opens a connection pool for the given driver.
// Any driver other than postgres gets '?' placeholders and a single connection (sqlite).
func Open(driverName, dsn string) (*DB, error) {
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var placeholder sq.PlaceholderFormat = sq.Dollar
	if driverName == "postgres" {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	} else {
		placeholder = sq.Question
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{
		DB:      sqlDB,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}, nil
}

// Builder returns a statement builder using the connection's placeholder format
func (db *DB) Builder() sq.StatementBuilderType {
	return db.builder
}

// HealthCheck pings the database
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// escapeLike escapes LIKE metacharacters so pattern matches literally
func escapeLike(pattern string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(pattern)
}
