package services

import (
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

var buildSuccessExpr = regexp.MustCompile(`^Successfully built\s+(\S+)$`)

// ImageBuilder drives a runtime build and turns its event stream into a
// build log and an image ID.
type ImageBuilder struct {
	runtime ports.ImageRuntime
	logger  logrus.FieldLogger
}

func NewImageBuilder(runtime ports.ImageRuntime, logger logrus.FieldLogger) *ImageBuilder {
	return &ImageBuilder{runtime: runtime, logger: logger}
}

// Build builds path as imageTag. It fails on the first error event and when
// the stream ends without a "Successfully built <id>" line.
func (b *ImageBuilder) Build(ctx context.Context, path, imageTag string, log *domain.BuildLog) (string, error) {
	logger := b.logger.WithField("image", imageTag)
	logger.Debug("start building")

	stream, err := b.runtime.Build(ctx, path, imageTag)
	if err != nil {
		log.Append("ERROR: " + err.Error())
		return "", domain.BuildError("start build", errors.WithStack(err))
	}
	defer stream.Close()

	return consumeBuild(stream, log, logger)
}

func consumeBuild(stream ports.EventStream, log *domain.BuildLog, logger logrus.FieldLogger) (string, error) {
	for {
		ev, err := stream.Next()
		if err == io.EOF {
			return "", domain.BuildError("read build output", errors.WithStack(domain.ErrNoBuildResult))
		}
		if err != nil {
			log.Append("ERROR: " + err.Error())
			return "", domain.BuildError("read build output", errors.WithStack(err))
		}

		switch ev.Kind {
		case ports.EventError:
			msg := strings.Trim(ev.Text, "\r\n")
			logger.Error(msg)
			log.Append(msg)
			return "", domain.BuildError("build", errors.New(msg))
		case ports.EventStatus:
			logger.Debug(ev.Text)
		default:
			for _, line := range splitLines(ev.Text) {
				log.Append(line)
				if m := buildSuccessExpr.FindStringSubmatch(line); m != nil {
					logger.WithField("id", m[1]).Info("image built")
					return m[1], nil
				}
				logger.Info(line)
			}
		}
	}
}

// splitLines breaks a stream fragment into non-empty lines without line endings.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
