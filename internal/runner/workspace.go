package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/varianttools/vt-itest/internal/backend"
)

// Workspace owns the shared dataset holding every test's output table for
// one run. It is created before any test launches and torn down after all
// tests finish, on every exit path, unless the run keeps tables.
type Workspace struct {
	client       backend.Client
	id           string
	keepTables   bool
	revalidation bool
	log          logrus.FieldLogger
}

// NewWorkspace builds a workspace handle. When revalidationID is set the
// workspace reuses that existing dataset; otherwise a fresh
// timestamp-based dataset id is generated.
func NewWorkspace(log logrus.FieldLogger, client backend.Client, keepTables bool, revalidationID string) *Workspace {
	id := revalidationID
	revalidation := id != ""

	if !revalidation {
		id = fmt.Sprintf("integration_tests_%s", time.Now().Format("20060102_150405"))
	}

	return &Workspace{
		client:       client,
		id:           id,
		keepTables:   keepTables,
		revalidation: revalidation,
		log:          log.WithField("component", "workspace").WithField("dataset", id),
	}
}

// ID returns the dataset identifier for this run.
func (w *Workspace) ID() string {
	return w.id
}

// Setup creates the dataset. In revalidation mode the dataset already
// exists and creation is skipped.
func (w *Workspace) Setup(ctx context.Context) error {
	if w.revalidation {
		w.log.Info("reusing existing dataset for revalidation")
		return nil
	}

	if err := w.client.CreateDataset(ctx, w.id); err != nil {
		return fmt.Errorf("creating dataset %s: %w", w.id, err)
	}

	w.log.Info("created dataset")

	return nil
}

// Cleanup deletes every table in the dataset and then the dataset itself,
// unless the run keeps tables. The backend refuses to delete a dataset
// that still holds tables, so the per-table deletes must come first.
func (w *Workspace) Cleanup(ctx context.Context) error {
	if w.keepTables {
		w.log.Info("keeping dataset and tables")
		return nil
	}

	tables, err := w.client.ListTables(ctx, w.id)
	if err != nil {
		return fmt.Errorf("listing tables in %s: %w", w.id, err)
	}

	for _, table := range tables {
		if err := w.client.DeleteTable(ctx, w.id, table); err != nil {
			return fmt.Errorf("deleting table %s.%s: %w", w.id, table, err)
		}
	}

	if err := w.client.DeleteDataset(ctx, w.id); err != nil {
		return fmt.Errorf("deleting dataset %s: %w", w.id, err)
	}

	w.log.WithField("tables", len(tables)).Info("deleted dataset")

	return nil
}
