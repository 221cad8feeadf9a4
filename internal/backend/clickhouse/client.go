// Package clickhouse implements the data-backend boundary on ClickHouse,
// for validation runs against a self-hosted warehouse.
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
	"github.com/varianttools/vt-itest/internal/backend"
	"github.com/varianttools/vt-itest/internal/config"
)

// Client talks to a ClickHouse server over the native protocol.
type Client struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// New opens a connection pool against the configured ClickHouse server
// and verifies it with a ping.
func New(ctx context.Context, log logrus.FieldLogger, cfg *config.Config) (*Client, error) {
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.ClickhouseHost, cfg.ClickhouseNativePort)},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.ClickhouseUsername,
			Password: cfg.ClickhousePassword,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 30 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	return &Client{
		db:  db,
		log: log.WithField("component", "clickhouse_backend"),
	}, nil
}

// CreateDataset creates a database; datasets map to databases here.
func (c *Client) CreateDataset(ctx context.Context, dataset string) error {
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE `%s`", dataset)); err != nil {
		return fmt.Errorf("creating database %s: %w", dataset, err)
	}

	c.log.WithField("database", dataset).Debug("created database")

	return nil
}

// DeleteDataset drops the database.
func (c *Client) DeleteDataset(ctx context.Context, dataset string) error {
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DROP DATABASE `%s`", dataset)); err != nil {
		return fmt.Errorf("dropping database %s: %w", dataset, err)
	}

	return nil
}

// ListTables returns all table names in the database.
func (c *Client) ListTables(ctx context.Context, dataset string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name FROM system.tables WHERE database = ?", dataset)
	if err != nil {
		return nil, fmt.Errorf("listing tables in %s: %w", dataset, err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}

		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tables in %s: %w", dataset, err)
	}

	return tables, nil
}

// DeleteTable drops a single table.
func (c *Client) DeleteTable(ctx context.Context, dataset, table string) error {
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE `%s`.`%s`", dataset, table)); err != nil {
		return fmt.Errorf("dropping table %s.%s: %w", dataset, table, err)
	}

	return nil
}

// Query runs a query and materializes every row as a column-name map.
func (c *Client) Query(ctx context.Context, query string) ([]backend.Row, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("getting columns: %w", err)
	}

	var results []backend.Row

	for rows.Next() {
		var (
			values    = make([]any, len(columns))
			valuePtrs = make([]any, len(columns))
		)

		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(backend.Row, len(columns))
		for i, col := range columns {
			// Convert []byte to string for comparison.
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	return results, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing clickhouse connection: %w", err)
	}

	return nil
}
