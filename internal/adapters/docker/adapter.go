package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse/internal/core/ports"
)

// Options selects the engine endpoint and registry credentials.
type Options struct {
	Host string // empty means DOCKER_HOST / default socket

	TLS        bool
	CACert     string
	ClientCert string
	ClientKey  string

	RegistryUser     string
	RegistryPassword string
	RegistryHost     string
}

// Adapter implements ports.ImageRuntime using the Docker SDK.
type Adapter struct {
	cli    *client.Client
	auth   registry.AuthConfig
	logger logrus.FieldLogger
}

// NewAdapter creates a new Docker adapter instance
func NewAdapter(opts Options, logger logrus.FieldLogger) (*Adapter, error) {
	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if opts.Host != "" {
		clientOpts = append(clientOpts, client.WithHost(opts.Host))
	}
	if opts.TLS {
		clientOpts = append(clientOpts, client.WithTLSClientConfig(opts.CACert, opts.ClientCert, opts.ClientKey))
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{
		cli: cli,
		auth: registry.AuthConfig{
			Username:      opts.RegistryUser,
			Password:      opts.RegistryPassword,
			ServerAddress: opts.RegistryHost,
		},
		logger: logger,
	}, nil
}

// Ping checks that the engine answers.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.cli.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach docker: %w", err)
	}
	return nil
}

// Build sends contextDir (minus .dockerignore matches) to the engine and
// returns its output stream. The classic builder is requested because its
// output carries the "Successfully built <id>" marker.
func (a *Adapter) Build(ctx context.Context, contextDir, tag string) (ports.EventStream, error) {
	excludes, err := readDockerignore(contextDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read .dockerignore: %w", err)
	}

	tar, err := archive.TarWithOptions(contextDir, &archive.TarOptions{ExcludePatterns: excludes})
	if err != nil {
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}

	a.logger.WithField("image", tag).Debug("sending build context")
	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true, // Remove intermediate containers
		Version:    types.BuilderV1,
	})
	if err != nil {
		tar.Close()
		return nil, fmt.Errorf("failed to build image: %w", err)
	}
	return newJSONStream(resp.Body, tar), nil
}

// Tag points target at the source image.
func (a *Adapter) Tag(ctx context.Context, source, target string) error {
	if err := a.cli.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("failed to tag image: %w", err)
	}
	return nil
}

// Push starts pushing ref and returns the progress stream.
func (a *Adapter) Push(ctx context.Context, ref string) (ports.EventStream, error) {
	auth, err := registry.EncodeAuthConfig(a.auth)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registry auth: %w", err)
	}
	rc, err := a.cli.ImagePush(ctx, ref, types.ImagePushOptions{RegistryAuth: auth})
	if err != nil {
		return nil, fmt.Errorf("failed to push image: %w", err)
	}
	return newJSONStream(rc), nil
}

func (a *Adapter) Close() error {
	return a.cli.Close()
}

func readDockerignore(contextDir string) ([]string, error) {
	f, err := os.Open(filepath.Join(contextDir, ".dockerignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ignorefile.ReadAll(f)
}
