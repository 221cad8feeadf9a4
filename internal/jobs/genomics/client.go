// Package genomics implements the job-launch boundary on the Genomics
// Pipelines API, which runs one-off containerized jobs on GCE.
package genomics

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/varianttools/vt-itest/internal/jobs"
	genomicsapi "google.golang.org/api/genomics/v1alpha2"
	"google.golang.org/api/option"
)

// Launcher submits ephemeral pipelines and polls their operations.
type Launcher struct {
	svc *genomicsapi.Service
	log logrus.FieldLogger
}

// New creates a Pipelines API launcher.
func New(ctx context.Context, log logrus.FieldLogger, opts ...option.ClientOption) (*Launcher, error) {
	svc, err := genomicsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating genomics service: %w", err)
	}

	return &Launcher{
		svc: svc,
		log: log.WithField("component", "pipelines_launcher"),
	}, nil
}

// Launch submits an ephemeral pipeline run and returns its operation name.
func (l *Launcher) Launch(ctx context.Context, req *jobs.Request) (string, error) {
	runReq := &genomicsapi.RunPipelineRequest{
		PipelineArgs: &genomicsapi.RunPipelineArgs{
			ProjectId: req.Project,
			Logging:   &genomicsapi.LoggingOptions{GcsPath: req.LoggingPath},
			ServiceAccount: &genomicsapi.ServiceAccount{
				Scopes: req.Scopes,
			},
		},
		EphemeralPipeline: &genomicsapi.Pipeline{
			ProjectId: req.Project,
			Name:      req.Name,
			Resources: &genomicsapi.PipelineResources{Zones: req.Zones},
			Docker: &genomicsapi.DockerExecutor{
				ImageName: req.Image,
				Cmd:       req.Command,
			},
		},
	}

	op, err := l.svc.Pipelines.Run(runReq).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("submitting pipeline run: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"job":       req.Name,
		"operation": op.Name,
	}).Debug("submitted pipeline run")

	return op.Name, nil
}

// Poll fetches the operation and maps it onto the boundary status.
func (l *Launcher) Poll(ctx context.Context, operation string) (*jobs.Status, error) {
	op, err := l.svc.Operations.Get(operation).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting operation %s: %w", operation, err)
	}

	status := &jobs.Status{Done: op.Done}
	if op.Error != nil {
		status.Error = &jobs.Error{Message: op.Error.Message}
	}

	return status, nil
}
