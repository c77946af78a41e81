package gitsource

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Options configures repository access.
type Options struct {
	// SSHKeyPath is a private key used for ssh:// and scp-like URLs.
	SSHKeyPath string
	SSHUser    string
}

// Fetcher implements ports.SourceFetcher with go-git.
type Fetcher struct {
	auth   transport.AuthMethod
	logger logrus.FieldLogger
}

func NewFetcher(opts Options, logger logrus.FieldLogger) (*Fetcher, error) {
	f := &Fetcher{logger: logger}
	if opts.SSHKeyPath != "" {
		user := opts.SSHUser
		if user == "" {
			user = "git"
		}
		auth, err := gitssh.NewPublicKeysFromFile(user, opts.SSHKeyPath, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load ssh key: %w", err)
		}
		f.auth = auth
	}
	return f, nil
}

// Fetch clones req.RepoURL into path, checks out req.CommitSHA detached,
// initialises submodules recursively and restores commit times.
func (f *Fetcher) Fetch(ctx context.Context, req domain.BuildRequest, path string, log *domain.BuildLog) error {
	logger := f.logger.WithFields(logrus.Fields{"repo": req.RepoURL, "commit": req.CommitSHA})

	logger.Infof("Cloning repo %q => %q", req.RepoURL, path)
	log.Append("Cloning " + req.RepoURL)
	repo, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:      req.RepoURL,
		Auth:     f.auth,
		Progress: &progressWriter{logger: logger},
	})
	if err != nil {
		return f.fail(log, "clone", err)
	}

	logger.Infof("Checkout commit %q", req.CommitSHA)
	log.Append("Checkout " + req.CommitSHA)
	hash, err := repo.ResolveRevision(plumbing.Revision(req.CommitSHA))
	if err != nil {
		return f.fail(log, "resolve commit "+req.CommitSHA, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return f.fail(log, "open worktree", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return f.fail(log, "checkout "+req.CommitSHA, err)
	}

	logger.Info("Updating submodules")
	subs, err := wt.Submodules()
	if err != nil {
		return f.fail(log, "list submodules", err)
	}
	if len(subs) > 0 {
		log.Append(fmt.Sprintf("Updating %d submodule(s)", len(subs)))
		err := subs.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
			Init:              true,
			RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
			Auth:              f.auth,
		})
		if err != nil {
			return f.fail(log, "update submodules", err)
		}
	}

	if err := RestoreCommitTimes(ctx, repo, path, logger); err != nil {
		return f.fail(log, "restore commit times", err)
	}

	logger.Info("Preparing complete")
	return nil
}

func (f *Fetcher) fail(log *domain.BuildLog, op string, err error) error {
	log.Append(fmt.Sprintf("ERROR: %s failed: %v", op, err))
	return domain.FetchError(op, errors.WithStack(err))
}

// progressWriter forwards git's sideband progress to the debug log.
type progressWriter struct {
	logger logrus.FieldLogger
}

func (w *progressWriter) Write(p []byte) (int, error) {
	for _, line := range strings.FieldsFunc(string(p), func(r rune) bool { return r == '\n' || r == '\r' }) {
		w.logger.Debug(line)
	}
	return len(p), nil
}
