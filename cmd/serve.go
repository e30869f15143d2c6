package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/site-signals-crawler/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the scan API and worker pool",
		Long: `Starts the HTTP API (POST /v1/scans, job and report lookups) and a pool of
workers that crawl submitted domains, store reports, archive them and publish
report-ready events. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("build service: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
