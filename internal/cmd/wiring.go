package cmd

import (
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse/internal/adapters/docker"
	"github.com/melih/lighthouse/internal/adapters/gitsource"
	"github.com/melih/lighthouse/internal/adapters/registry"
	"github.com/melih/lighthouse/internal/adapters/workspace"
	"github.com/melih/lighthouse/internal/config"
	"github.com/melih/lighthouse/internal/core/ports"
	"github.com/melih/lighthouse/internal/core/services"
)

func newRedis(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// newOrchestrator wires the build pipeline. The returned adapter must be
// closed by the caller.
func newOrchestrator(cfg config.Config, logger *logrus.Logger) (*services.Orchestrator, *docker.Adapter, error) {
	// 1. Initialize Adapters (Infrastructure)
	dockerAdapter, err := docker.NewAdapter(docker.Options{
		Host:             cfg.DockerURL,
		TLS:              cfg.DockerTLS,
		CACert:           cfg.DockerCACert,
		ClientCert:       cfg.DockerClientCert,
		ClientKey:        cfg.DockerClientKey,
		RegistryUser:     cfg.DockerRegistryUser,
		RegistryPassword: cfg.DockerRegistryPassword,
		RegistryHost:     cfg.DockerRegistry,
	}, logger.WithField("component", "docker"))
	if err != nil {
		return nil, nil, err
	}

	fetcher, err := gitsource.NewFetcher(gitsource.Options{
		SSHKeyPath: cfg.GitSSHKey,
		SSHUser:    cfg.GitSSHUser,
	}, logger.WithField("component", "git"))
	if err != nil {
		dockerAdapter.Close()
		return nil, nil, err
	}

	// 2. Registry queries only make sense against a private registry.
	var registryClient ports.RegistryClient
	if cfg.DockerRegistry != "" {
		registryClient = registry.NewClient(cfg.DockerSSLRegistry, nil)
	}

	// 3. Core services, with the adapters injected.
	builder := services.NewImageBuilder(dockerAdapter, logger.WithField("component", "builder"))
	publisher := services.NewRegistryPublisher(dockerAdapter, registryClient, services.PublishOptions{
		Registry: cfg.DockerRegistry,
		SSL:      cfg.DockerSSLRegistry,
	}, logger.WithField("component", "publisher"))

	orchestrator := services.NewOrchestrator(
		workspace.NewProvider(cfg.WorkspaceDir, logger.WithField("component", "workspace")),
		fetcher,
		builder,
		publisher,
		services.OrchestratorOptions{Publish: cfg.DockerPublish},
		logger.WithField("component", "orchestrator"),
	)
	return orchestrator, dockerAdapter, nil
}
