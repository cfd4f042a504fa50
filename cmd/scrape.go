package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/fetcher"
	"github.com/harmattan-labs/cng-atlas/internal/scraper"
	"github.com/harmattan-labs/cng-atlas/pkg/anthropic"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run station source scrapers",
	Long: `Run station source scrapers and upsert results into the store.

By default, runs every registered source whose schedule says it is due.
Use --category to restrict to a category, --sources for specific sources,
and --force to ignore scheduling.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringSlice("sources", nil, "Only run the named sources (e.g. nmdpra,osm)")
	scrapeCmd.Flags().String("category", "", "Only run sources in this category (official, community, manual)")
	scrapeCmd.Flags().Bool("force", false, "Run even when the schedule says a source is not due")
	scrapeCmd.Flags().Int("concurrency", 4, "Max sources fetching at once")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	sources, _ := cmd.Flags().GetStringSlice("sources")
	categoryName, _ := cmd.Flags().GetString("category")
	force, _ := cmd.Flags().GetBool("force")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	opts := scraper.RunOpts{Sources: sources, Force: force}
	if categoryName != "" {
		category, err := scraper.ParseCategory(categoryName)
		if err != nil {
			return err
		}
		opts.Category = &category
	}

	runDir := filepath.Join(os.TempDir(), fmt.Sprintf("cng-atlas-run-%d", time.Now().UnixNano()))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return eris.Wrapf(err, "scrape: create run dir %s", runDir)
	}
	defer os.RemoveAll(runDir) //nolint:errcheck

	httpf := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Scrape.UserAgent,
		Timeout:    scrapeTimeout(),
		MaxRetries: cfg.Scrape.MaxRetries,
	})
	ftpf := fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: scrapeTimeout()})

	reg := scraper.NewRegistry()
	reg.Register(scraper.NewNMDPRA(cfg.Scrape.NMDPRAURL, httpf, ftpf))
	reg.Register(scraper.NewOSM(cfg.Scrape.OverpassURL, httpf))
	if cfg.Anthropic.Key != "" {
		llm := anthropic.NewClient(cfg.Anthropic.Key)
		reg.Register(scraper.NewPCNGI(cfg.Scrape.PCNGIURL, cfg.Anthropic.Model, httpf, llm))
	} else {
		zap.L().Info("pcngi source disabled: anthropic key not configured")
	}

	engine := scraper.NewEngine(st, reg, runDir, concurrency)
	return engine.Run(ctx, opts)
}
