// Package bigquery implements the data-backend boundary on BigQuery.
package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/sirupsen/logrus"
	"github.com/varianttools/vt-itest/internal/backend"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Client talks to BigQuery for one project.
type Client struct {
	bq  *bigquery.Client
	log logrus.FieldLogger
}

// New creates a BigQuery-backed client for the given project.
func New(ctx context.Context, log logrus.FieldLogger, project string, opts ...option.ClientOption) (*Client, error) {
	bq, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	return &Client{
		bq:  bq,
		log: log.WithField("component", "bigquery_backend"),
	}, nil
}

// CreateDataset creates the dataset in the client's project.
func (c *Client) CreateDataset(ctx context.Context, dataset string) error {
	if err := c.bq.Dataset(dataset).Create(ctx, &bigquery.DatasetMetadata{}); err != nil {
		return fmt.Errorf("creating dataset %s: %w", dataset, err)
	}

	c.log.WithField("dataset", dataset).Debug("created dataset")

	return nil
}

// DeleteDataset deletes an empty dataset. BigQuery refuses to delete a
// dataset that still holds tables, so callers delete tables first.
func (c *Client) DeleteDataset(ctx context.Context, dataset string) error {
	if err := c.bq.Dataset(dataset).Delete(ctx); err != nil {
		return fmt.Errorf("deleting dataset %s: %w", dataset, err)
	}

	return nil
}

// ListTables returns all table names in the dataset.
func (c *Client) ListTables(ctx context.Context, dataset string) ([]string, error) {
	var tables []string

	it := c.bq.Dataset(dataset).Tables(ctx)

	for {
		table, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("listing tables in %s: %w", dataset, err)
		}

		tables = append(tables, table.TableID)
	}

	return tables, nil
}

// DeleteTable deletes a single table.
func (c *Client) DeleteTable(ctx context.Context, dataset, table string) error {
	if err := c.bq.Dataset(dataset).Table(table).Delete(ctx); err != nil {
		return fmt.Errorf("deleting table %s.%s: %w", dataset, table, err)
	}

	return nil
}

// Query runs a query and materializes every row as a column-name map.
func (c *Client) Query(ctx context.Context, query string) ([]backend.Row, error) {
	it, err := c.bq.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}

	var rows []backend.Row

	for {
		var row map[string]bigquery.Value

		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading query results: %w", err)
		}

		result := make(backend.Row, len(row))
		for col, val := range row {
			result[col] = val
		}

		rows = append(rows, result)
	}

	return rows, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if err := c.bq.Close(); err != nil {
		return fmt.Errorf("closing bigquery client: %w", err)
	}

	return nil
}
