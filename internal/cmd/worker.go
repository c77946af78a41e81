package cmd

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/melih/lighthouse/internal/adapters/kafka"
	"github.com/melih/lighthouse/internal/adapters/metrics"
	"github.com/melih/lighthouse/internal/adapters/redisstore"
	"github.com/melih/lighthouse/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume build requests and build images",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
			cfg.Workers = n
		}
		ctx := cmd.Context()

		orchestrator, dockerAdapter, err := newOrchestrator(cfg, logger)
		if err != nil {
			return err
		}
		defer dockerAdapter.Close()

		logger.Infof("Testing docker connection: %s", cfg.DockerURL)
		if err := dockerAdapter.Ping(ctx); err != nil {
			return err
		}
		if cfg.DockerPublish {
			logger.Infof("Publishing to %s://%s", cfg.RegistryScheme(), cfg.DockerRegistry)
		}

		rdb := newRedis(cfg)
		defer rdb.Close()
		queue := redisstore.NewQueue(rdb, cfg.QueuePrefix)
		store := redisstore.NewStore(rdb, cfg.QueuePrefix, cfg.LogTTL)

		reg := prometheus.NewRegistry()
		opts := []worker.Option{
			worker.WithSinks(queue),
			worker.WithLogStore(store),
			worker.WithHeartbeats(store),
			worker.WithRecorder(metrics.New(reg)),
		}
		if cfg.KafkaBrokers != "" {
			sink, err := kafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger.WithField("component", "kafka"))
			if err != nil {
				return err
			}
			defer sink.Close()
			opts = append(opts, worker.WithSinks(sink))
		}

		if addr, _ := cmd.Flags().GetString("metrics-listen"); addr != "" {
			app := fiber.New(fiber.Config{DisableStartupMessage: true})
			app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
			go func() {
				if err := app.Listen(addr); err != nil {
					logger.WithError(err).Error("metrics server stopped")
				}
			}()
			defer app.Shutdown()
		}

		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "unknown"
		}
		w := worker.New(queue, orchestrator, worker.Config{
			Node:         fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
			Slots:        cfg.Workers,
			BuildTimeout: cfg.BuildTimeout,
			Heartbeat:    cfg.Heartbeat,
		}, logger.WithField("component", "worker"), opts...)
		return w.Start(ctx)
	},
}

func init() {
	workerCmd.Flags().Int("workers", 0, "parallel build slots (overrides workers)")
	workerCmd.Flags().String("metrics-listen", "", "serve /metrics on this address")
	rootCmd.AddCommand(workerCmd)
}
