package cmd

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	lhttp "github.com/melih/lighthouse/internal/adapters/http"
	"github.com/melih/lighthouse/internal/adapters/redisstore"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the webhook endpoints and the build API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}

		// 1. Initialize Adapters (Infrastructure)
		rdb := newRedis(cfg)
		defer rdb.Close()
		queue := redisstore.NewQueue(rdb, cfg.QueuePrefix)
		store := redisstore.NewStore(rdb, cfg.QueuePrefix, cfg.LogTTL)

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		// 2. Initialize HTTP Handlers (Interface Adapters)
		webhooks := lhttp.NewWebhookHandler(queue, store, logger.WithField("component", "webhook"))
		builds := lhttp.NewBuildsHandler(store, store)

		// 3. Setup Framework (Fiber)
		app := fiber.New(fiber.Config{DisableStartupMessage: true})
		lhttp.Register(app, webhooks, builds, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		go func() {
			<-cmd.Context().Done()
			logger.Info("shutting down")
			_ = app.Shutdown()
		}()

		// 4. Start Server
		logger.Infof("Server starting on %s", cfg.Listen)
		return app.Listen(cfg.Listen)
	},
}

func init() {
	apiCmd.Flags().String("listen", "", "address to listen on (overrides listen)")
	rootCmd.AddCommand(apiCmd)
}
