package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/crawler"
)

var (
	crawlSeedID  string
	crawlSource  string
	crawlDepth   int
	crawlMax     int
	crawlTimeout time.Duration
	crawlFresh   bool
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl <name>",
	Short: "Crawl ancestry records for a person across configured sources",
	Long: `Crawl searches the configured sources for a person, writes every fact
their records attest to the ledger as PROPOSED, and follows discovered
relatives generation by generation until the depth or entry ceiling is
reached.

Progress is checkpointed after every processed entry; an interrupted
crawl resumes exactly where it stopped.

Example:
  lineaged crawl "John Smith"
  lineaged crawl "John Smith" --seed-id familysearch:ABCD-123 --depth 4
  lineaged crawl "John Smith" --fresh --max-entries 50`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVar(&crawlSeedID, "seed-id", "", "source-qualified record ID to start from (e.g. familysearch:ABCD-123)")
	crawlCmd.Flags().StringVar(&crawlSource, "source", "", "source name for the seed (defaults to the highest-priority source)")
	crawlCmd.Flags().IntVar(&crawlDepth, "depth", 0, "generation depth ceiling (0 = use config)")
	crawlCmd.Flags().IntVar(&crawlMax, "max-entries", 0, "total entry ceiling across runs (0 = use config)")
	crawlCmd.Flags().DurationVar(&crawlTimeout, "timeout", 30*time.Minute, "overall crawl timeout")
	crawlCmd.Flags().BoolVar(&crawlFresh, "fresh", false, "discard the existing checkpoint and start over")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	name := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	if crawlDepth > 0 {
		cfg.Crawl.MaxDepth = crawlDepth
	}
	if crawlMax > 0 {
		cfg.Crawl.MaxEntries = crawlMax
	}
	if crawlFresh && cfg.Crawl.CheckpointPath != "" {
		if err := os.Remove(cfg.Crawl.CheckpointPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("discard checkpoint: %w", err)
		}
	}

	router, err := buildRouter(cfg, logger)
	if err != nil {
		return err
	}
	extractor, err := buildExtractor(cfg, logger)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = l.Close() }()

	c, err := crawler.New(router, extractor, l, crawler.FromModelCrawl(cfg.Crawl), logger)
	if err != nil {
		return err
	}

	source := crawlSource
	if source == "" && len(cfg.Sources) > 0 {
		source = cfg.Sources[0].Name
	}
	c.Seed(crawler.SeedEntry(name, source, crawlSeedID))

	ctx, cancel := context.WithTimeout(context.Background(), crawlTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := c.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	fmt.Printf("Crawl finished in %s\n", report.Elapsed.Round(time.Millisecond))
	fmt.Printf("  Processed: %d (succeeded %d, failed %d, retries %d)\n",
		report.Counters.Processed, report.Counters.Succeeded, report.Counters.Failed, report.Counters.Retried)
	fmt.Printf("  Facts written: %d\n", report.FactsWritten)
	fmt.Printf("  Queue remaining: %d\n", report.QueueLeft)
	for id, reason := range report.Failures {
		fmt.Printf("  Failed %s: %s\n", id, reason)
	}
	if report.QueueLeft > 0 {
		fmt.Printf("\nRun the same command again to continue from the checkpoint.\n")
	}
	return nil
}
