package ports

import (
	"context"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Workspace is an isolated directory owned by one build.
type Workspace interface {
	Path() string
	// Release removes the directory. It is idempotent.
	Release() error
}

// WorkspaceProvider hands out fresh workspaces.
type WorkspaceProvider interface {
	Acquire(ctx context.Context) (Workspace, error)
}

// SourceFetcher materialises a repository at an exact commit inside path,
// submodules and historical file modification times included.
type SourceFetcher interface {
	Fetch(ctx context.Context, req domain.BuildRequest, path string, log *domain.BuildLog) error
}

// ImageBuilder builds path into an image tagged imageTag and returns the image ID.
type ImageBuilder interface {
	Build(ctx context.Context, path, imageTag string, log *domain.BuildLog) (string, error)
}

// Publisher pushes a successfully built image.
type Publisher interface {
	Publish(ctx context.Context, build *domain.Success) domain.PushOutcome
}
