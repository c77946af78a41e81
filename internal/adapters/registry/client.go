package registry

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/pkg/errors"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Client implements ports.RegistryClient over the distribution API.
type Client struct {
	nameOpts []name.Option
	keychain authn.Keychain
}

// NewClient creates a registry client. Without ssl the registry is reached
// over plain http.
func NewClient(ssl bool, keychain authn.Keychain) *Client {
	c := &Client{keychain: keychain}
	if !ssl {
		c.nameOpts = append(c.nameOpts, name.Insecure)
	}
	if c.keychain == nil {
		c.keychain = authn.DefaultKeychain
	}
	return c
}

func (c *Client) remoteOpts(ctx context.Context) []remote.Option {
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(c.keychain),
	}
}

func (c *Client) repository(repo string) (name.Repository, error) {
	r, err := name.NewRepository(repo, c.nameOpts...)
	if err != nil {
		return name.Repository{}, fmt.Errorf("invalid repository %q: %w", repo, err)
	}
	return r, nil
}

// ResolveTag looks tag up in the repository's tag listing and returns the
// digest of the manifest it points to.
func (c *Client) ResolveTag(ctx context.Context, repo, tag string) (string, error) {
	r, err := c.repository(repo)
	if err != nil {
		return "", err
	}
	tags, err := remote.List(r, c.remoteOpts(ctx)...)
	if err != nil {
		return "", errors.Wrapf(err, "list tags of %s", r)
	}
	if !slices.Contains(tags, tag) {
		return "", errors.WithStack(domain.ErrTagNotFound)
	}
	desc, err := remote.Head(r.Tag(tag), c.remoteOpts(ctx)...)
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s:%s", r, tag)
	}
	return desc.Digest.String(), nil
}

func (c *Client) DeleteTag(ctx context.Context, repo, tag string) error {
	r, err := c.repository(repo)
	if err != nil {
		return err
	}
	if err := remote.Delete(r.Tag(tag), c.remoteOpts(ctx)...); err != nil {
		return errors.Wrapf(err, "delete %s:%s", r, tag)
	}
	return nil
}

// SetTag points tag at the manifest with digest imageID.
func (c *Client) SetTag(ctx context.Context, repo, tag, imageID string) error {
	r, err := c.repository(repo)
	if err != nil {
		return err
	}
	desc, err := remote.Get(r.Digest(imageID), c.remoteOpts(ctx)...)
	if err != nil {
		return errors.Wrapf(err, "fetch %s@%s", r, imageID)
	}
	if err := remote.Tag(r.Tag(tag), desc, c.remoteOpts(ctx)...); err != nil {
		return errors.Wrapf(err, "tag %s@%s as %s", r, imageID, tag)
	}
	return nil
}
