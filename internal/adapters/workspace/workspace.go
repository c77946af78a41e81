package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

// Provider creates build directories under a base directory.
type Provider struct {
	base   string
	newID  func() string
	logger logrus.FieldLogger
}

// NewProvider returns a Provider rooted at base; an empty base means the
// system temp directory.
func NewProvider(base string, logger logrus.FieldLogger) *Provider {
	if base == "" {
		base = os.TempDir()
	}
	return &Provider{base: base, newID: uuid.NewString, logger: logger}
}

// Acquire creates a fresh uniquely named directory. It fails with
// domain.ErrWorkspaceExists instead of reusing an existing path.
func (p *Provider) Acquire(ctx context.Context) (ports.Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.WorkspaceError("acquire", errors.WithStack(err))
	}
	if err := os.MkdirAll(p.base, 0o755); err != nil {
		return nil, domain.WorkspaceError("prepare base", errors.WithStack(err))
	}

	path := filepath.Join(p.base, p.newID())
	p.logger.Debugf("Making directory: %q", path)
	if err := os.Mkdir(path, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, domain.WorkspaceError("create "+path, errors.WithStack(domain.ErrWorkspaceExists))
		}
		return nil, domain.WorkspaceError("create "+path, errors.WithStack(err))
	}
	return &Dir{path: path, logger: p.logger}, nil
}

// Dir is an acquired workspace directory.
type Dir struct {
	path   string
	logger logrus.FieldLogger

	once sync.Once
	err  error
}

func (d *Dir) Path() string { return d.path }

// Release removes the directory once; later calls return the first result.
func (d *Dir) Release() error {
	d.once.Do(func() {
		d.logger.Debugf("Deleting directory: %q", d.path)
		if err := os.RemoveAll(d.path); err != nil {
			d.err = domain.WorkspaceError("remove "+d.path, errors.WithStack(err))
		}
	})
	return d.err
}
