package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/gps"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

var (
	evalAll     bool
	evalTimeout time.Duration
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [fact-id...]",
	Short: "Evaluate proposed facts against the Genealogical Proof Standard",
	Long: `Evaluate runs facts through the five-pillar proof standard. Acceptance
requires every pillar satisfied, no unresolved evidence conflicts, and
confidence at or above the configured threshold. Facts that fall short
end INCOMPLETE with a revision request describing what is missing.

Each evaluation appends a new ledger version; prior versions are never
modified.

Example:
  lineaged evaluate 4fd2a3c1-...
  lineaged evaluate --all`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().BoolVar(&evalAll, "all", false, "evaluate every PROPOSED fact in the ledger")
	evaluateCmd.Flags().DurationVar(&evalTimeout, "timeout", 5*time.Minute, "overall evaluation timeout")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if !evalAll && len(args) == 0 {
		return fmt.Errorf("provide fact IDs or --all")
	}
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

	evaluator, err := buildEvaluator(cfg, logger)
	if err != nil {
		return err
	}
	engine := gps.New(l, evaluator, gps.FromModelEval(cfg.Evaluation), logger)

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	factIDs := args
	if evalAll {
		factIDs, err = proposedFactIDs(ctx, l)
		if err != nil {
			return err
		}
		if len(factIDs) == 0 {
			fmt.Println("No proposed facts to evaluate.")
			return nil
		}
	}

	accepted, incomplete := 0, 0
	for _, id := range factIDs {
		outcome, err := engine.Submit(ctx, id)
		if err != nil {
			var timeout *model.EvaluationTimeout
			if errors.As(err, &timeout) {
				return fmt.Errorf("evaluation timed out at fact %s; resubmit to continue", id)
			}
			return err
		}
		printOutcome(outcome)
		switch outcome.Fact.Status {
		case model.StatusAccepted:
			accepted++
		case model.StatusIncomplete:
			incomplete++
		}
	}
	fmt.Printf("\nEvaluated %d facts: %d accepted, %d incomplete\n", len(factIDs), accepted, incomplete)
	return nil
}

func proposedFactIDs(ctx context.Context, l ledgerReader) ([]string, error) {
	ids, err := l.FactIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	var proposed []string
	for _, id := range ids {
		fact, err := l.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if fact.Status == model.StatusProposed {
			proposed = append(proposed, id)
		}
	}
	return proposed, nil
}

// ledgerReader is the read slice of the ledger the evaluate command needs
type ledgerReader interface {
	FactIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, factID string) (*model.Fact, error)
}

func printOutcome(outcome *gps.Outcome) {
	fact := outcome.Fact
	fmt.Printf("%s v%d: %s (confidence %.2f, %d evaluations)\n",
		fact.FactID, fact.Version, fact.Status, fact.ConfidenceScore, len(outcome.Evaluations))
	fmt.Printf("  %s\n", fact.Statement)
	if outcome.Revision != nil {
		fmt.Printf("  Revision requested: %s\n", outcome.Revision.Reason)
		for _, missing := range outcome.Revision.SourcesMissing {
			fmt.Printf("    Missing source: %s\n", missing)
		}
		for _, conflict := range outcome.Revision.Conflicts {
			fmt.Printf("    Unresolved conflict: %s\n", conflict.Description)
		}
	}
}
