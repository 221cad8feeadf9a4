// Package jobs defines the remote job-launch boundary. A launched job is
// identified by an opaque operation name that is polled until done.
package jobs

import "context"

// Request describes one containerized pipeline job.
type Request struct {
	Project     string
	Name        string
	Image       string
	Command     string
	LoggingPath string
	Scopes      []string
	Zones       []string
}

// Error is the error payload of a failed operation.
type Error struct {
	Message string
}

// Status is one observation of an in-flight operation.
type Status struct {
	Done  bool
	Error *Error
}

// Launcher submits jobs and polls their operations.
type Launcher interface {
	// Launch submits the job and returns the operation name to poll.
	Launch(ctx context.Context, req *Request) (string, error)

	// Poll fetches the current status of the named operation.
	Poll(ctx context.Context, operation string) (*Status, error)
}
