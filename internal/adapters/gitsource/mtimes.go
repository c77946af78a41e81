package gitsource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type treeObject struct {
	path string
	hash plumbing.Hash
}

// CommitTimes maps every path of head's tree to the earliest author time of
// the unbroken run of ancestors (walked breadth first from head) whose trees
// still contain that path's object. A path stops being considered as soon as
// an ancestor lacks its object, so the walk ends once every path is settled
// rather than at the root of history.
func CommitTimes(ctx context.Context, head *object.Commit) (map[string]time.Time, error) {
	tree, err := head.Tree()
	if err != nil {
		return nil, errors.Wrap(err, "read head tree")
	}
	pending, err := treeObjects(tree)
	if err != nil {
		return nil, err
	}

	times := make(map[string]time.Time, len(pending))
	iter := object.NewCommitIterBSF(head, nil, nil)
	defer iter.Close()

	var (
		lastTree plumbing.Hash
		present  map[plumbing.Hash]struct{}
	)
	for len(pending) > 0 {
		commit, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "walk history")
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}

		if present == nil || commit.TreeHash != lastTree {
			if present, err = treeHashes(commit); err != nil {
				return nil, err
			}
			lastTree = commit.TreeHash
		}

		when := commit.Author.When
		kept := pending[:0]
		for _, obj := range pending {
			if _, ok := present[obj.hash]; !ok {
				continue
			}
			if t, ok := times[obj.path]; !ok || when.Before(t) {
				times[obj.path] = when
			}
			kept = append(kept, obj)
		}
		pending = kept
	}
	return times, nil
}

// treeObjects lists files and directories of tree. Gitlinks and symlinks
// are skipped: the former are handled as repositories of their own, the
// latter cannot be stamped without touching their target.
func treeObjects(tree *object.Tree) ([]treeObject, error) {
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	var objs []treeObject
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			return objs, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "walk tree")
		}
		if entry.Mode == filemode.Submodule || entry.Mode == filemode.Symlink {
			continue
		}
		objs = append(objs, treeObject{path: name, hash: entry.Hash})
	}
}

func treeHashes(commit *object.Commit) (map[plumbing.Hash]struct{}, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, errors.Wrapf(err, "read tree of %s", commit.Hash)
	}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	hashes := make(map[plumbing.Hash]struct{})
	for {
		_, entry, err := walker.Next()
		if err == io.EOF {
			return hashes, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "walk tree of %s", commit.Hash)
		}
		hashes[entry.Hash] = struct{}{}
	}
}

// RestoreCommitTimes stamps the checkout of repo at root, then does the same
// for each submodule below its own checkout path.
func RestoreCommitTimes(ctx context.Context, repo *git.Repository, root string, logger logrus.FieldLogger) error {
	logger.Infof("Restoring file mtimes for path: %s", root)

	ref, err := repo.Head()
	if err != nil {
		return errors.Wrap(err, "resolve HEAD")
	}
	head, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return errors.Wrapf(err, "read commit %s", ref.Hash())
	}
	times, err := CommitTimes(ctx, head)
	if err != nil {
		return err
	}
	if err := applyTimes(root, times, logger); err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "open worktree")
	}
	subs, err := wt.Submodules()
	if err != nil {
		return errors.Wrap(err, "list submodules")
	}
	for _, sm := range subs {
		cfg := sm.Config()
		smRepo, err := sm.Repository()
		if err != nil {
			return errors.Wrapf(err, "open submodule %s", cfg.Name)
		}
		if err := RestoreCommitTimes(ctx, smRepo, filepath.Join(root, filepath.FromSlash(cfg.Path)), logger); err != nil {
			return errors.Wrapf(err, "submodule %s", cfg.Name)
		}
	}
	return nil
}

func applyTimes(root string, times map[string]time.Time, logger logrus.FieldLogger) error {
	for rel, when := range times {
		name := filepath.Join(root, filepath.FromSlash(rel))
		logger.Debugf("%s %s", when.Format(time.RFC3339), name)
		if err := os.Chtimes(name, when, when); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "set mtime of %s", name)
		}
	}
	return nil
}
