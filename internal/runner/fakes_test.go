package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/varianttools/vt-itest/internal/backend"
	"github.com/varianttools/vt-itest/internal/jobs"
)

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

var errDatasetNotEmpty = errors.New("dataset is still in use")

// fakeBackend is an in-memory backend.Client recording every call in
// order, so tests can check teardown ordering.
type fakeBackend struct {
	mu       sync.Mutex
	datasets map[string]bool
	tables   map[string][]string
	queryFn  func(ctx context.Context, query string) ([]backend.Row, error)
	queries  []string
	calls    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		datasets: make(map[string]bool),
		tables:   make(map[string][]string),
	}
}

func (f *fakeBackend) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBackend) CreateDataset(_ context.Context, dataset string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("create_dataset %s", dataset)
	f.datasets[dataset] = true

	return nil
}

func (f *fakeBackend) DeleteDataset(_ context.Context, dataset string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("delete_dataset %s", dataset)

	// Mirror the real backends: a dataset with tables cannot be deleted.
	if len(f.tables[dataset]) > 0 {
		return errDatasetNotEmpty
	}

	delete(f.datasets, dataset)

	return nil
}

func (f *fakeBackend) ListTables(_ context.Context, dataset string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("list_tables %s", dataset)

	return append([]string(nil), f.tables[dataset]...), nil
}

func (f *fakeBackend) DeleteTable(_ context.Context, dataset, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("delete_table %s.%s", dataset, table)

	remaining := make([]string, 0, len(f.tables[dataset]))
	for _, t := range f.tables[dataset] {
		if t != table {
			remaining = append(remaining, t)
		}
	}
	f.tables[dataset] = remaining

	return nil
}

func (f *fakeBackend) Query(ctx context.Context, query string) ([]backend.Row, error) {
	f.mu.Lock()
	f.record("query")
	f.queries = append(f.queries, query)
	queryFn := f.queryFn
	f.mu.Unlock()

	if queryFn == nil {
		return nil, nil
	}

	return queryFn(ctx, query)
}

func (f *fakeBackend) Close() error {
	return nil
}

func (f *fakeBackend) addTable(dataset, table string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tables[dataset] = append(f.tables[dataset], table)
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.queries)
}

// singleRow is a queryFn returning one fixed row for every query.
func singleRow(row backend.Row) func(context.Context, string) ([]backend.Row, error) {
	return func(context.Context, string) ([]backend.Row, error) {
		return []backend.Row{row}, nil
	}
}

// fakeLauncher is an in-memory jobs.Launcher. Each operation reports not
// done for pollsUntilDone polls, then returns the configured terminal
// status.
type fakeLauncher struct {
	mu             sync.Mutex
	launches       []*jobs.Request
	polls          int
	pollsUntilDone int
	terminal       *jobs.Status
	launchErr      error
}

func newFakeLauncher(terminal *jobs.Status) *fakeLauncher {
	if terminal == nil {
		terminal = &jobs.Status{Done: true}
	}

	return &fakeLauncher{terminal: terminal}
}

func (f *fakeLauncher) Launch(_ context.Context, req *jobs.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.launchErr != nil {
		return "", f.launchErr
	}

	f.launches = append(f.launches, req)

	return fmt.Sprintf("operations/op-%d", len(f.launches)), nil
}

func (f *fakeLauncher) Poll(_ context.Context, _ string) (*jobs.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	if f.polls <= f.pollsUntilDone {
		return &jobs.Status{Done: false}, nil
	}

	return f.terminal, nil
}

func (f *fakeLauncher) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.launches)
}

// newTestRunContext wires a RunContext onto fakes with no poll delays.
func newTestRunContext(be *fakeBackend, launcher *fakeLauncher) *RunContext {
	return &RunContext{
		Project:         "test-project",
		StagingLocation: "gs://bucket/staging",
		TempLocation:    "gs://bucket/temp",
		LoggingLocation: "gs://bucket/logs",
		Image:           "gcr.io/test/image",
		PipelinePath:    "/opt/pipeline/run",
		PipelineName:    "itest-pipeline",
		Scopes:          []string{"https://www.googleapis.com/auth/bigquery"},
		Zones:           []string{"us-west1-b"},
		QueryTimeout:    5 * time.Second,
		Backend:         be,
		Jobs:            launcher,
	}
}
