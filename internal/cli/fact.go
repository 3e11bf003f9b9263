package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/projection"
)

var (
	listStatus string
	listPerson string
	listPlace  string
	listFrom   int
	listTo     int
)

// factCmd represents the fact command group
var factCmd = &cobra.Command{
	Use:   "fact",
	Short: "Inspect facts in the ledger and read model",
}

var factShowCmd = &cobra.Command{
	Use:   "show <fact-id>",
	Short: "Show every version and event of a fact",
	Long: `Show prints the full append-only history of one fact: each version
with its status, confidence trail, citations, and the evaluation that
produced it, followed by the audit events.`,
	Args: cobra.ExactArgs(1),
	RunE: runFactShow,
}

var factListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current facts from the projection",
	Long: `List queries the denormalized read model. Run 'lineaged rebuild' first
if the projection is stale or missing.

Example:
  lineaged fact list --status ACCEPTED
  lineaged fact list --person "John Smith"
  lineaged fact list --from 1840 --to 1860 --place "County Cork"`,
	RunE: runFactList,
}

func init() {
	rootCmd.AddCommand(factCmd)
	factCmd.AddCommand(factShowCmd)
	factCmd.AddCommand(factListCmd)

	factListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (PROPOSED, ACCEPTED, REJECTED, INCOMPLETE)")
	factListCmd.Flags().StringVar(&listPerson, "person", "", "filter by subject name")
	factListCmd.Flags().StringVar(&listPlace, "place", "", "filter by place")
	factListCmd.Flags().IntVar(&listFrom, "from", 0, "filter by event year, range start")
	factListCmd.Flags().IntVar(&listTo, "to", 0, "filter by event year, range end")
}

func runFactShow(cmd *cobra.Command, args []string) error {
	factID := args[0]
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

	ctx := context.Background()
	versions, err := l.Versions(ctx, factID)
	if err != nil {
		return fmt.Errorf("load fact %s: %w", factID, err)
	}

	for _, v := range versions {
		fmt.Printf("v%d  %s  confidence %.2f  %s\n",
			v.Version, v.Status, v.ConfidenceScore, v.CreatedAt.Format(time.RFC3339))
		fmt.Printf("    %s\n", v.Statement)
		fmt.Printf("    by %s/%s\n", v.Provenance.Agent, v.Provenance.Process)
		for _, c := range v.Sources {
			fmt.Printf("    cites %s record %s (%s)\n", c.Repository, c.RecordID, c.EvidenceType)
		}
		for _, d := range v.ConfidenceHistory {
			fmt.Printf("    delta %+.2f by %s: %s\n", d.Delta, d.Agent, d.Reason)
		}
		if v.Evaluation != nil {
			fmt.Printf("    evaluation of v%d by %s:\n", v.Evaluation.FactVersion, v.Evaluation.EvaluatedBy)
			for i := 0; i < model.NumPillars; i++ {
				fmt.Printf("      %s: %s\n", model.Pillar(i), v.Evaluation.Pillars[i])
			}
			for _, conflict := range v.Evaluation.Conflicts {
				state := "unresolved"
				if conflict.Resolved {
					state = "resolved: " + conflict.Resolution
				}
				fmt.Printf("      conflict (%s): %s\n", state, conflict.Description)
			}
		}
		fmt.Println()
	}

	events, err := l.Events(ctx, factID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	fmt.Println("Events:")
	for _, e := range events {
		fmt.Printf("  v%d  %s  %s  %s\n", e.Version, e.At.Format(time.RFC3339), e.Agent, e.Reason)
	}
	return nil
}

func runFactList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := openProjection(cfg)
	if err != nil {
		return fmt.Errorf("open projection: %w", err)
	}
	defer func() { _ = p.Close() }()

	ctx := context.Background()
	var rows []projection.Row
	switch {
	case listStatus != "":
		rows, err = p.ByStatus(ctx, model.FactStatus(listStatus))
	case listPerson != "":
		rows, err = p.ByPerson(ctx, listPerson)
	case listPlace != "":
		rows, err = p.ByPlace(ctx, listPlace)
	case listFrom > 0 || listTo > 0:
		to := listTo
		if to == 0 {
			to = time.Now().Year()
		}
		rows, err = p.ByDateRange(ctx, listFrom, to)
	default:
		rows, err = p.All(ctx)
	}
	if err != nil {
		return fmt.Errorf("query projection: %w", err)
	}

	if len(rows) == 0 {
		fmt.Println("No facts match. Run 'lineaged rebuild' if the projection is stale.")
		return nil
	}
	for _, row := range rows {
		fmt.Printf("%-36s v%-2d %-10s %.2f  %s\n",
			row.FactID, row.Version, row.Status, row.Confidence, row.Statement)
	}
	fmt.Printf("\n%d facts\n", len(rows))
	return nil
}
