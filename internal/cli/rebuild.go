package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rebuildTimeout time.Duration

// rebuildCmd represents the rebuild command
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the query projection from the ledger",
	Long: `Rebuild discards the denormalized read model and replays the full
ledger to reconstruct it. The projection is disposable; the ledger is
the only source of truth, so a rebuild always converges to the same
state for the same ledger contents.`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
	rebuildCmd.Flags().DurationVar(&rebuildTimeout, "timeout", 10*time.Minute, "rebuild timeout")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	l, err := openLedger(cfg, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = l.Close() }()

	p, err := openProjection(cfg)
	if err != nil {
		return fmt.Errorf("open projection: %w", err)
	}
	defer func() { _ = p.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
	defer cancel()

	start := time.Now()
	if err := p.Rebuild(ctx, l); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	counts, err := p.Counts(ctx)
	if err != nil {
		return fmt.Errorf("count facts: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	fmt.Printf("Rebuilt projection in %s: %d facts\n", time.Since(start).Round(time.Millisecond), total)
	for status, n := range counts {
		fmt.Printf("  %s: %d\n", status, n)
	}
	return nil
}
