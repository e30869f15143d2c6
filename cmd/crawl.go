package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	"github.com/JakeFAU/site-signals-crawler/internal/report"
	"github.com/JakeFAU/site-signals-crawler/internal/server"
)

type crawlFlags struct {
	engine      string
	maxPages    int
	pageTimeout time.Duration
	output      string
	asReport    bool
}

// newCrawlCmd creates the one-shot 'crawl' subcommand. It prints the crawl
// result (or the assembled report with --report) as JSON.
func newCrawlCmd() *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl <domain>",
		Short: "Crawls one site and prints its signals as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			return runCrawl(cmd, rt, flags, args[0])
		},
	}
	cmd.Flags().StringVar(&flags.engine, "engine", "", "renderer engine override (chromedp or static)")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "page budget (default from config)")
	cmd.Flags().DurationVar(&flags.pageTimeout, "page-timeout", 0, "per-page navigation timeout (default from config)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write JSON to this file instead of stdout")
	cmd.Flags().BoolVar(&flags.asReport, "report", false, "emit the stored report shape with cached metrics")
	return cmd
}

func runCrawl(cmd *cobra.Command, rt *runtime, flags *crawlFlags, domain string) error {
	cfg := rt.cfg
	if flags.engine != "" {
		cfg.Renderer.Engine = flags.engine
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --engine: %w", err)
		}
	}
	scanner, release, err := server.NewScanner(cfg, rt.logger)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res := scanner.Scan(ctx, domain, crawler.Options{MaxPages: flags.maxPages, PageTimeout: flags.pageTimeout})
	rt.logger.Info("crawl finished",
		zap.String("domain", res.Domain),
		zap.Bool("success", res.Success),
		zap.Int("pages", len(res.Pages)),
		zap.Duration("elapsed", time.Since(start)),
	)

	var payload any = res
	if flags.asReport {
		rep, err := report.Build(res, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("build report: %w", err)
		}
		full, err := rep.Full()
		if err != nil {
			return fmt.Errorf("decode report: %w", err)
		}
		payload = full
	}

	out := cmd.OutOrStdout()
	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeJSON(out, payload); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("crawl of %s failed: %s", domain, res.ErrorText())
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
