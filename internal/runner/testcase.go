package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/varianttools/vt-itest/internal/backend"
	"github.com/varianttools/vt-itest/internal/jobs"
	"github.com/varianttools/vt-itest/internal/queryfmt"
	"github.com/varianttools/vt-itest/internal/testdef"
)

// noTracebackMessage is raised when an operation reports an error without
// a message. This should never happen, but it must not crash the run.
const noTracebackMessage = "No traceback. See logs for more information on error."

// TestCase is one configured scenario: a pipeline launch request plus the
// validation queries for the table it produces.
type TestCase struct {
	name       string
	tableID    string
	request    *jobs.Request
	assertions []testdef.AssertionConfig
	run        *RunContext
	log        logrus.FieldLogger
}

// NewTestCase builds the launch request for a definition against the
// run's workspace dataset.
func NewTestCase(rc *RunContext, def *testdef.Definition, dataset string, log logrus.FieldLogger) *TestCase {
	tableID := backend.TableID(dataset, def.TableName)

	args := []string{
		fmt.Sprintf("--input_pattern %s", def.InputPattern),
		fmt.Sprintf("--output_table %s:%s", rc.Project, tableID),
		fmt.Sprintf("--project %s", rc.Project),
		fmt.Sprintf("--staging_location %s", rc.StagingLocation),
		fmt.Sprintf("--temp_location %s", rc.TempLocation),
		fmt.Sprintf("--job_name %s", jobName(def.TestName, dataset)),
	}

	// Extra definition fields pass through as pipeline flags, in sorted
	// order so the command line is deterministic.
	extraKeys := make([]string, 0, len(def.Extra))
	for key := range def.Extra {
		extraKeys = append(extraKeys, key)
	}

	sort.Strings(extraKeys)

	for _, key := range extraKeys {
		args = append(args, fmt.Sprintf("--%s %s", key, def.Extra[key]))
	}

	command := strings.Join(append([]string{rc.PipelinePath}, args...), " ")

	return &TestCase{
		name:    def.TestName,
		tableID: tableID,
		request: &jobs.Request{
			Project:     rc.Project,
			Name:        rc.PipelineName,
			Image:       rc.Image,
			Command:     command,
			LoggingPath: rc.LoggingLocation,
			Scopes:      rc.Scopes,
			Zones:       rc.Zones,
		},
		assertions: def.AssertionConfigs,
		run:        rc,
		log:        log.WithField("test", def.TestName),
	}
}

// Name returns the test case name.
func (t *TestCase) Name() string {
	return t.name
}

// Run submits the pipeline job and blocks until its operation reaches a
// terminal state, failing the test if the terminal state carries an error.
func (t *TestCase) Run(ctx context.Context) error {
	operation, err := t.run.Jobs.Launch(ctx, t.request)
	if err != nil {
		return fmt.Errorf("launching job: %w", err)
	}

	t.log.WithField("operation", operation).Info("job launched")

	status, err := t.waitForOperation(ctx, operation)
	if err != nil {
		return err
	}

	return handleTerminalStatus(status)
}

// waitForOperation polls until the operation is done. The first poll is
// delayed, the job takes a while to even start.
func (t *TestCase) waitForOperation(ctx context.Context, operation string) (*jobs.Status, error) {
	if err := sleepCtx(ctx, t.run.InitialPollDelay); err != nil {
		return nil, err
	}

	for {
		status, err := t.run.Jobs.Poll(ctx, operation)
		if err != nil {
			return nil, fmt.Errorf("polling operation %s: %w", operation, err)
		}

		if status.Done {
			return status, nil
		}

		if err := sleepCtx(ctx, t.run.PollInterval); err != nil {
			return nil, err
		}
	}
}

// Validate runs every configured assertion against the output table, in
// order. The first failing assertion fails the test.
func (t *TestCase) Validate(ctx context.Context) error {
	formatter := queryfmt.NewFormatter(t.tableID)

	for _, config := range t.assertions {
		query, err := formatter.Format(config.Query)
		if err != nil {
			return fmt.Errorf("formatting query: %w", err)
		}

		assertion := &queryAssertion{
			client:   t.run.Backend,
			query:    query,
			expected: config.ExpectedResult,
			timeout:  t.run.QueryTimeout,
		}

		if err := assertion.run(ctx); err != nil {
			return err
		}
	}

	return nil
}

func handleTerminalStatus(status *jobs.Status) error {
	if status.Error == nil {
		return nil
	}

	if status.Error.Message != "" {
		return &Failure{msg: status.Error.Message}
	}

	return &Failure{msg: noTracebackMessage}
}

// jobName derives a remote job name from the test name and dataset id.
// Job names only allow lowercase letters, digits and hyphens.
func jobName(testName, dataset string) string {
	name := strings.ToLower(fmt.Sprintf("%s-%s", testName, dataset))

	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, name)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
