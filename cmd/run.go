package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/varianttools/vt-itest/internal/backend"
	bigquerybackend "github.com/varianttools/vt-itest/internal/backend/bigquery"
	clickhousebackend "github.com/varianttools/vt-itest/internal/backend/clickhouse"
	"github.com/varianttools/vt-itest/internal/config"
	"github.com/varianttools/vt-itest/internal/jobs"
	"github.com/varianttools/vt-itest/internal/jobs/genomics"
	"github.com/varianttools/vt-itest/internal/runner"
	"github.com/varianttools/vt-itest/internal/testdef"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

var errTestsFailed = errors.New("one or more test cases failed")

var runFlags struct {
	project         string
	stagingLocation string
	tempLocation    string
	loggingLocation string
	image           string

	runPresubmitTests bool
	runAllTests       bool
	keepTables        bool
	revalidationID    string

	backendName string
	testsDir    string
	concurrency int
	timeout     time.Duration
	verbose     bool
	interactive bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the integration test suite",
	Long: `Run the integration test suite: launch one pipeline job per test case,
wait for all jobs to finish, and validate each output table.

By default only the small presubmit tests run. Use --run-presubmit-tests
for the full presubmit set or --run-all-tests for everything.

To keep the tables a run creates, use --keep-tables. To re-run only the
validation queries against a kept dataset, use --revalidation-dataset-id
with the dataset id of a previous run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSuite(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.project, "project", "", "cloud project to run in (required)")
	runCmd.Flags().StringVar(&runFlags.stagingLocation, "staging-location", "", "staging path for the pipeline (required)")
	runCmd.Flags().StringVar(&runFlags.tempLocation, "temp-location", "", "temp path for the pipeline (required)")
	runCmd.Flags().StringVar(&runFlags.loggingLocation, "logging-location", "", "path for remote job logs (required)")
	runCmd.Flags().StringVar(&runFlags.image, "image", config.DefaultImage, "container image to test")
	runCmd.Flags().BoolVar(&runFlags.runPresubmitTests, "run-presubmit-tests", false, "run the full presubmit test set")
	runCmd.Flags().BoolVar(&runFlags.runAllTests, "run-all-tests", false, "run every integration test")
	runCmd.Flags().BoolVar(&runFlags.keepTables, "keep-tables", false, "do not delete the created dataset and tables")
	runCmd.Flags().StringVar(&runFlags.revalidationID, "revalidation-dataset-id", "",
		"skip execution and only re-run validation against this existing dataset")
	runCmd.Flags().StringVar(&runFlags.backendName, "backend", "",
		"data backend: bigquery or clickhouse (default from VT_ITEST_BACKEND)")
	runCmd.Flags().StringVar(&runFlags.testsDir, "tests-dir", "tests", "root directory holding test definitions")
	runCmd.Flags().IntVar(&runFlags.concurrency, "concurrency", 0,
		"cap on concurrently running test cases (0 = one worker per test)")
	runCmd.Flags().DurationVar(&runFlags.timeout, "timeout", 0,
		"overall run timeout; 0 waits for jobs indefinitely")
	runCmd.Flags().BoolVarP(&runFlags.verbose, "verbose", "v", false, "enable debug logging")
	runCmd.Flags().BoolVarP(&runFlags.interactive, "interactive", "i", false, "pick the test suite interactively")

	for _, flag := range []string{"project", "staging-location", "temp-location", "logging-location"} {
		if err := runCmd.MarkFlagRequired(flag); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(runCmd)
}

func runSuite(ctx context.Context) error {
	log := runLogger(runFlags.verbose)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if runFlags.backendName != "" {
		if err := config.ValidateBackend(runFlags.backendName); err != nil {
			return err
		}

		cfg.Backend = runFlags.backendName
	}

	if runFlags.interactive {
		if err := selectSuite(&runFlags.runPresubmitTests, &runFlags.runAllTests); err != nil {
			return err
		}
	}

	// Every definition must be valid before anything remote is touched.
	loader := testdef.NewLoader(log, os.DirFS(runFlags.testsDir))

	defs, err := loader.LoadDir(suiteDir(runFlags.runPresubmitTests, runFlags.runAllTests))
	if err != nil {
		return err
	}

	if runFlags.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, runFlags.timeout)
		defer cancel()
	}

	be, launcher, err := buildClients(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := be.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("failed to close backend client")
		}
	}()

	orchestrator := runner.NewOrchestrator(&runner.OrchestratorConfig{
		Logger:      log,
		Concurrency: runFlags.concurrency,
		Writer:      os.Stdout,
		Run: &runner.RunContext{
			Project:             runFlags.project,
			StagingLocation:     runFlags.stagingLocation,
			TempLocation:        runFlags.tempLocation,
			LoggingLocation:     runFlags.loggingLocation,
			Image:               runFlags.image,
			PipelinePath:        config.DefaultPipelinePath,
			PipelineName:        config.DefaultPipelineName,
			Scopes:              cfg.Scopes,
			Zones:               cfg.Zones,
			KeepTables:          runFlags.keepTables,
			RevalidationDataset: runFlags.revalidationID,
			InitialPollDelay:    cfg.InitialPollDelay,
			PollInterval:        cfg.PollInterval,
			QueryTimeout:        cfg.QueryTimeout,
			Backend:             be,
			Jobs:                launcher,
		},
	})

	exitCode, err := orchestrator.Run(ctx, defs)
	if err != nil {
		return err
	}

	if exitCode != 0 {
		return errTestsFailed
	}

	return nil
}

// buildClients resolves application-default credentials once and wires
// both the data backend and the job launcher with them.
func buildClients(ctx context.Context, log logrus.FieldLogger, cfg *config.Config) (backend.Client, jobs.Launcher, error) {
	creds, err := google.FindDefaultCredentials(ctx, cfg.Scopes...)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving application default credentials: %w", err)
	}

	launcher, err := genomics.New(ctx, log, option.WithCredentials(creds))
	if err != nil {
		return nil, nil, err
	}

	var be backend.Client

	switch cfg.Backend {
	case config.BackendClickHouse:
		be, err = clickhousebackend.New(ctx, log, cfg)
	default:
		be, err = bigquerybackend.New(ctx, log, runFlags.project, option.WithCredentials(creds))
	}

	if err != nil {
		return nil, nil, err
	}

	return be, launcher, nil
}

// suiteDir maps the test-selection flags onto a subdirectory of the
// tests root, relative to --tests-dir.
func suiteDir(runPresubmit, runAll bool) string {
	switch {
	case runAll:
		return "."
	case runPresubmit:
		return "presubmit"
	default:
		return filepath.Join("presubmit", "small")
	}
}
