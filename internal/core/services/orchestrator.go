package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

// OrchestratorOptions holds the per-deployment switches of the pipeline.
type OrchestratorOptions struct {
	// Publish enables pushing successful builds (docker_publish).
	Publish bool
}

// Orchestrator runs one build request end to end: workspace, fetch, build,
// optional publish. It holds no per-build state, so one instance can serve
// many concurrent Run calls.
type Orchestrator struct {
	workspaces ports.WorkspaceProvider
	fetcher    ports.SourceFetcher
	builder    ports.ImageBuilder
	publisher  ports.Publisher
	opts       OrchestratorOptions
	logger     logrus.FieldLogger
}

func NewOrchestrator(
	workspaces ports.WorkspaceProvider,
	fetcher ports.SourceFetcher,
	builder ports.ImageBuilder,
	publisher ports.Publisher,
	opts OrchestratorOptions,
	logger logrus.FieldLogger,
) *Orchestrator {
	return &Orchestrator{
		workspaces: workspaces,
		fetcher:    fetcher,
		builder:    builder,
		publisher:  publisher,
		opts:       opts,
		logger:     logger,
	}
}

// Run never returns an error: every failure, panics included, becomes a
// *domain.Failure carrying the log gathered so far.
func (o *Orchestrator) Run(ctx context.Context, req domain.BuildRequest) (result domain.BuildResult) {
	log := domain.NewBuildLog()
	stage := domain.StageIdle
	logger := o.logger.WithFields(logrus.Fields{
		"build":  req.ID,
		"repo":   req.RepoURL,
		"commit": req.CommitSHA,
		"tag":    req.Tag,
	})

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("stage", stage).Errorf("build panicked: %v", r)
			result = &domain.Failure{
				Request:   req,
				Stage:     stage,
				Err:       fmt.Errorf("panic: %v", r),
				BuildLog:  log.Lines(),
				Traceback: string(debug.Stack()),
			}
		}
	}()

	ws, err := o.workspaces.Acquire(ctx)
	if err != nil {
		return o.fail(logger, req, stage, err, log)
	}
	defer func() {
		if err := ws.Release(); err != nil {
			logger.WithError(err).Warn("failed to release workspace")
		}
	}()

	stage = domain.StageFetching
	if err := o.fetcher.Fetch(ctx, req, ws.Path(), log); err != nil {
		return o.fail(logger, req, stage, err, log)
	}

	stage = domain.StageBuilding
	if err := ctx.Err(); err != nil {
		return o.fail(logger, req, stage, domain.BuildError("start build", errors.WithStack(err)), log)
	}
	imageID, err := o.builder.Build(ctx, ws.Path(), req.ImageTag(), log)
	if err != nil {
		return o.fail(logger, req, stage, err, log)
	}

	success := &domain.Success{
		Request:   req,
		ImageID:   imageID,
		Tag:       req.Tag,
		ImageName: strings.ToLower(req.ImageName),
	}

	if o.opts.Publish && o.publisher != nil {
		stage = domain.StagePublishing
		outcome := o.publisher.Publish(ctx, success)
		log.Append(outcome.PushLog...)
		success.Push = &outcome
		if outcome.Failed {
			ref := outcome.DestinationRepo + ":" + outcome.DestinationTag
			failure := o.fail(logger, req, stage, domain.PublishError("push "+ref, errors.WithStack(domain.ErrPushFailed)), log)
			failure.Push = &outcome
			return failure
		}
	}

	stage = domain.StageDone
	success.BuildLog = log.Lines()
	logger.WithField("id", imageID).Info("build finished")
	return success
}

func (o *Orchestrator) fail(logger logrus.FieldLogger, req domain.BuildRequest, stage domain.Stage, err error, log *domain.BuildLog) *domain.Failure {
	logger.WithError(err).WithField("stage", stage).Error("build failed")
	return &domain.Failure{
		Request:   req,
		Stage:     stage,
		Err:       err,
		BuildLog:  log.Lines(),
		Traceback: fmt.Sprintf("%+v", err),
	}
}
