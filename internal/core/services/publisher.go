package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

const latestTag = "latest"

// PublishOptions mirrors the docker_registry / docker_ssl_registry settings.
type PublishOptions struct {
	// Registry is the destination host[:port]. Empty means the public registry.
	Registry string
	SSL      bool
}

func (o PublishOptions) url() string {
	scheme := "http"
	if o.SSL {
		scheme = "https"
	}
	host := o.Registry
	if host == "" {
		host = "public"
	}
	return scheme + "://" + host
}

// RegistryPublisher tags and pushes built images and, when a registry is
// configured, points its "latest" alias at the pushed image.
type RegistryPublisher struct {
	runtime  ports.ImageRuntime
	registry ports.RegistryClient
	opts     PublishOptions
	logger   logrus.FieldLogger
}

// NewRegistryPublisher creates a publisher. registry may be nil, which skips
// the registry query step.
func NewRegistryPublisher(runtime ports.ImageRuntime, registry ports.RegistryClient, opts PublishOptions, logger logrus.FieldLogger) *RegistryPublisher {
	return &RegistryPublisher{runtime: runtime, registry: registry, opts: opts, logger: logger}
}

// Destination derives the repository and tag an image is pushed to.
// "Owner/Repo" with tag "v1.0" and registry "reg:5000" gives
// ("reg:5000/owner/repo", "1.0").
func Destination(imageName, tag, registry string) (repo, destTag string) {
	destTag = domain.DestinationTag(tag)

	owner, name := "", strings.ToLower(imageName)
	if i := strings.Index(name, "/"); i >= 0 {
		owner, name = name[:i], name[i+1:]
	}
	name = strings.ReplaceAll(name, "/", "_")
	if owner != "" {
		name = owner + "/" + name
	}

	if registry == "" {
		return name, destTag
	}
	return strings.ToLower(registry + "/" + name), destTag
}

func (p *RegistryPublisher) Publish(ctx context.Context, build *domain.Success) domain.PushOutcome {
	repo, tag := Destination(build.ImageName, build.Tag, p.opts.Registry)
	ref := repo + ":" + tag
	out := domain.PushOutcome{DestinationRepo: repo, DestinationTag: tag}
	logger := p.logger.WithFields(logrus.Fields{"repo": repo, "tag": tag})

	if p.opts.Registry == "" {
		logger.Warn("PUSHING TO PUBLIC DOCKER REGISTRY")
		out.PushLog = append(out.PushLog, "WARNING: pushing to the public registry")
	}
	if source := strings.ToLower(build.ImageName + ":" + tag); source != ref {
		if err := p.runtime.Tag(ctx, build.ImageID, ref); err != nil {
			logger.WithError(err).Error("failed to tag image")
			out.PushLog = append(out.PushLog, fmt.Sprintf("ERROR: failed to tag %s as %s: %v", build.ImageID, ref, err))
		}
	}

	logger.Infof("Preparing to push to the registry: %s", p.opts.url())
	out.PushLog = append(out.PushLog, "", "Pushing into registry "+p.opts.url())

	p.push(ctx, ref, &out, logger)

	if p.registry != nil && p.opts.Registry != "" && !out.Failed {
		p.repointLatest(ctx, &out, logger)
	}
	return out
}

func (p *RegistryPublisher) push(ctx context.Context, ref string, out *domain.PushOutcome, logger logrus.FieldLogger) {
	stream, err := p.runtime.Push(ctx, ref)
	if err != nil {
		logger.WithError(err).Error("failed to start push")
		out.Failed = true
		out.PushLog = append(out.PushLog, err.Error())
		return
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			logger.WithError(err).Error("push stream broken")
			out.Failed = true
			out.PushLog = append(out.PushLog, err.Error())
			return
		}
		text := strings.Trim(ev.Text, "\r\n")
		if ev.Kind == ports.EventError {
			logger.Error(text)
			out.Failed = true
			out.PushLog = append(out.PushLog, text)
			continue
		}
		logger.Debug(text)
		if text != "" {
			out.PushLog = append(out.PushLog, text)
		}
	}
}

// repointLatest records every failure as a log line; none of them fail the push.
func (p *RegistryPublisher) repointLatest(ctx context.Context, out *domain.PushOutcome, logger logrus.FieldLogger) {
	logger.Debug("Trying to fetch image id")
	id, err := p.registry.ResolveTag(ctx, out.DestinationRepo, out.DestinationTag)
	if errors.Is(err, domain.ErrTagNotFound) {
		logger.Warn("pushed tag is not listed by the registry, latest left untouched")
		out.PushLog = append(out.PushLog, fmt.Sprintf("WARNING: tag %q not listed by registry %q, latest not updated", out.DestinationTag, p.opts.url()))
		return
	}
	if err != nil {
		logger.WithError(err).Error("failed to resolve image id")
		out.PushLog = append(out.PushLog, fmt.Sprintf("ERROR: Can't fetch image id from registry %q", p.opts.url()))
		return
	}
	out.ResolvedImageID = id
	logger.Infof("Pushing successful as %s", id)

	logger.Debug("Deleting tag: latest")
	if err := p.registry.DeleteTag(ctx, out.DestinationRepo, latestTag); err != nil {
		logger.WithError(err).Debug("failed to delete latest tag")
	}

	logger.Debugf("Setting latest tag as %s", id)
	if err := p.registry.SetTag(ctx, out.DestinationRepo, latestTag, id); err != nil {
		logger.WithError(err).Error("failed to set latest tag")
		out.PushLog = append(out.PushLog, fmt.Sprintf("ERROR: Can't set latest tag in registry %q: %v", p.opts.url(), err))
	}
}
