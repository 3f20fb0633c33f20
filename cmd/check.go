package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dqlens-cli/internal/cde"
	"github.com/KaramelBytes/dqlens-cli/internal/engine"
	"github.com/KaramelBytes/dqlens-cli/internal/history"
)

var (
	checkJSON      bool
	checkMaxIssues int
	checkFailUnder float64
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the enabled rules against the workspace dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, wc, err := openWorkspace()
		if err != nil {
			return err
		}
		// CDEs weight the dataset score
		if _, err := wc.IdentifyCDEs(); err != nil {
			return fmt.Errorf("no dataset loaded (use 'dqlens load'): %w", err)
		}
		res, rep, err := wc.Recheck()
		if err != nil {
			return err
		}
		recordRun(cmd.Context(), history.NewRun(w.Name, res, rep))

		if checkJSON {
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			printResult(cmd.OutOrStdout(), res, checkMaxIssues)
		}
		if checkFailUnder > 0 && res.DatasetScore != nil && *res.DatasetScore < checkFailUnder {
			return fmt.Errorf("dataset quality %.3f is below %.3f", *res.DatasetScore, checkFailUnder)
		}
		return nil
	},
}

func printResult(out io.Writer, res *engine.Result, maxIssues int) {
	fmt.Fprintf(out, "Checked %d rows with %d rules\n", res.Rows, len(res.RuleScores))
	for _, rs := range res.RuleScores {
		fmt.Fprintf(out, "  %-36s %-20s %-18s %s (%d/%d)\n",
			rs.RuleID, rs.Column, rs.Kind, fmtScore(rs.Score), rs.Passed, rs.Evaluated)
	}
	fmt.Fprintf(out, "Dataset quality: %s\n", fmtScore(res.DatasetScore))
	if len(res.Issues) == 0 {
		fmt.Fprintln(out, "No issues.")
		return
	}
	fmt.Fprintf(out, "Issues (%d):\n", len(res.Issues))
	for i, is := range res.Issues {
		if maxIssues > 0 && i >= maxIssues {
			fmt.Fprintf(out, "  ... %d more (use --json for all)\n", len(res.Issues)-maxIssues)
			break
		}
		where := fmt.Sprintf("row %d", is.Row)
		if is.Row == engine.AggregateRow {
			where = "column"
		}
		fmt.Fprintf(out, "  [%s] %s %s: %s\n", is.Severity, is.Column, where, is.Message)
	}
}

// isMissingDataset reports whether err means no dataset is loaded.
func isMissingDataset(err error) bool {
	return errors.Is(err, cde.ErrProfileMissing)
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the full result as JSON")
	checkCmd.Flags().IntVar(&checkMaxIssues, "max-issues", 50, "issues to print (0 for all)")
	checkCmd.Flags().Float64Var(&checkFailUnder, "fail-under", 0, "exit non-zero when dataset quality is below this score")
}
