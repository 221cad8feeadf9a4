// Package runner executes integration test cases: it launches pipeline
// jobs, polls them to completion, and validates their output tables.
package runner

import (
	"fmt"
	"time"

	"github.com/varianttools/vt-itest/internal/backend"
	"github.com/varianttools/vt-itest/internal/jobs"
)

// RunContext carries the shared, read-only state for one test run.
// It is constructed once from the CLI arguments and referenced by every
// test case.
type RunContext struct {
	Project         string
	StagingLocation string
	TempLocation    string
	LoggingLocation string

	Image        string
	PipelinePath string
	PipelineName string
	Scopes       []string
	Zones        []string

	KeepTables          bool
	RevalidationDataset string

	InitialPollDelay time.Duration
	PollInterval     time.Duration
	QueryTimeout     time.Duration

	Backend backend.Client
	Jobs    jobs.Launcher
}

// RevalidationMode reports whether this run only re-validates tables in
// an existing dataset, skipping job launches entirely.
func (rc *RunContext) RevalidationMode() bool {
	return rc.RevalidationDataset != ""
}

// Result is the outcome of one test case. A nil Err means the test passed.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Failure is a test-case failure with a human-readable diagnostic. It is
// distinct from infrastructure errors, though both fail the test.
type Failure struct {
	msg string
}

func (f *Failure) Error() string {
	return f.msg
}

func failuref(format string, args ...any) *Failure {
	return &Failure{msg: fmt.Sprintf(format, args...)}
}
