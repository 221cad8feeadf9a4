package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/varianttools/vt-itest/internal/testdef"
	"golang.org/x/sync/errgroup"
)

// Orchestrator fans out test cases against a shared workspace, joins all
// results and reports them.
type Orchestrator struct {
	run         *RunContext
	concurrency int
	writer      io.Writer
	log         logrus.FieldLogger
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Logger logrus.FieldLogger
	Run    *RunContext

	// Concurrency caps how many test cases run at once. Zero means one
	// worker per test case.
	Concurrency int

	Writer io.Writer
}

// NewOrchestrator creates a new test orchestrator.
func NewOrchestrator(cfg *OrchestratorConfig) *Orchestrator {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	return &Orchestrator{
		run:         cfg.Run,
		concurrency: cfg.Concurrency,
		writer:      writer,
		log:         cfg.Logger.WithField("component", "orchestrator"),
	}
}

// Run executes every test definition against a freshly created (or, in
// revalidation mode, pre-existing) workspace and reports the results.
// It returns the process exit code: 0 when every test passed.
//
// Workspace teardown runs on every exit path, including cancellation, so
// it uses a fresh context. Teardown failures are fatal for the run.
func (o *Orchestrator) Run(ctx context.Context, defs []*testdef.Definition) (exitCode int, err error) {
	workspace := NewWorkspace(o.log, o.run.Backend, o.run.KeepTables, o.run.RevalidationDataset)

	if setupErr := workspace.Setup(ctx); setupErr != nil {
		return 1, fmt.Errorf("setting up workspace: %w", setupErr)
	}

	defer func() {
		if cleanupErr := workspace.Cleanup(context.Background()); cleanupErr != nil {
			exitCode = 1

			if err == nil {
				err = fmt.Errorf("cleaning up workspace: %w", cleanupErr)
			}
		}
	}()

	results := o.execute(ctx, workspace, defs)

	return printResults(o.writer, results), nil
}

// execute runs all test cases concurrently and joins before returning.
// A test failure never cancels sibling tests; every failure is captured
// as that test's Result.
func (o *Orchestrator) execute(ctx context.Context, workspace *Workspace, defs []*testdef.Definition) []Result {
	o.log.WithFields(logrus.Fields{
		"tests":        len(defs),
		"dataset":      workspace.ID(),
		"revalidation": o.run.RevalidationMode(),
	}).Info("running test cases")

	cases := make([]*TestCase, len(defs))
	for i, def := range defs {
		cases[i] = NewTestCase(o.run, def, workspace.ID(), o.log)
	}

	results := make([]Result, len(cases))

	g := new(errgroup.Group)
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}

	for i, tc := range cases {
		g.Go(func() error {
			start := time.Now()

			runErr := o.runOne(ctx, tc)

			// Each worker writes to its own index, no mutex needed.
			results[i] = Result{
				Name:     tc.Name(),
				Err:      runErr,
				Duration: time.Since(start),
			}

			if runErr != nil {
				o.log.WithError(runErr).WithField("test", tc.Name()).Error("test case failed")
			}

			return nil
		})
	}

	// Workers never return errors; Wait is only the join barrier.
	_ = g.Wait()

	return results
}

func (o *Orchestrator) runOne(ctx context.Context, tc *TestCase) error {
	if !o.run.RevalidationMode() {
		if err := tc.Run(ctx); err != nil {
			return err
		}
	}

	return tc.Validate(ctx)
}
