package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse/internal/core/domain"
)

var buildFlags struct {
	repo    string
	commit  string
	tag     string
	name    string
	publish bool
	output  string
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build one tag locally and print the result record",
	Example: `  lighthouse build --repo https://github.com/acme/app.git \
    --commit 3f0c1e2 --tag v1.4.0 --name acme/app`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if buildFlags.output != "json" && buildFlags.output != "yaml" {
			return fmt.Errorf("unknown output format %q", buildFlags.output)
		}
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("publish") {
			cfg.DockerPublish = buildFlags.publish
		}

		orchestrator, dockerAdapter, err := newOrchestrator(cfg, logger)
		if err != nil {
			return err
		}
		defer dockerAdapter.Close()

		ctx := cmd.Context()
		if cfg.BuildTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.BuildTimeout)
			defer cancel()
		}

		result := orchestrator.Run(ctx, domain.BuildRequest{
			ID:         uuid.NewString(),
			RepoURL:    buildFlags.repo,
			CommitSHA:  buildFlags.commit,
			Tag:        buildFlags.tag,
			ImageName:  buildFlags.name,
			Sender:     os.Getenv("USER"),
			ReceivedAt: time.Now(),
		})

		if err := writeRecord(cmd.OutOrStdout(), result.Record(), buildFlags.output); err != nil {
			return err
		}
		if !result.Succeeded() {
			return fmt.Errorf("build failed")
		}
		return nil
	},
}

func init() {
	f := buildCmd.Flags()
	f.StringVar(&buildFlags.repo, "repo", "", "repository URL")
	f.StringVar(&buildFlags.commit, "commit", "", "commit to build")
	f.StringVar(&buildFlags.tag, "tag", "", "version tag, e.g. v1.2.3")
	f.StringVar(&buildFlags.name, "name", "", "image name, owner/repo")
	f.BoolVar(&buildFlags.publish, "publish", false, "push the image (overrides docker_publish)")
	f.StringVarP(&buildFlags.output, "output", "o", "json", "result format: json or yaml")
	for _, name := range []string{"repo", "commit", "tag", "name"} {
		_ = buildCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(buildCmd)
}

func writeRecord(w io.Writer, rec domain.ResultRecord, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
