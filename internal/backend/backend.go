// Package backend defines the data-backend boundary used for workspace
// lifecycle management and validation queries.
package backend

import "context"

// Row is a single query result row addressed by column name.
type Row map[string]any

// Client is the set of data-backend operations the test runner needs.
// Implementations exist for BigQuery and ClickHouse.
type Client interface {
	// CreateDataset creates the named dataset. The dataset must not
	// already exist.
	CreateDataset(ctx context.Context, dataset string) error

	// DeleteDataset deletes the named dataset. The backend rejects
	// deletion while the dataset still contains tables.
	DeleteDataset(ctx context.Context, dataset string) error

	// ListTables returns the names of all tables in the dataset.
	ListTables(ctx context.Context, dataset string) ([]string, error)

	// DeleteTable deletes one table from the dataset.
	DeleteTable(ctx context.Context, dataset, table string) error

	// Query runs a SQL query and returns all result rows.
	Query(ctx context.Context, query string) ([]Row, error)

	Close() error
}

// TableID returns the fully-qualified identifier for a table, as used in
// validation queries.
func TableID(dataset, table string) string {
	return dataset + "." + table
}
