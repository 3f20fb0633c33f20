package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dqlens-cli/internal/dashboard"
	"github.com/KaramelBytes/dqlens-cli/internal/rules"
)

var dashJSON bool

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Summarise CDEs, rules, quality and compliance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, wc, err := openWorkspace()
		if err != nil {
			return err
		}
		if _, err := wc.IdentifyCDEs(); err == nil {
			if _, err := wc.RunChecks(); err != nil {
				return err
			}
		} else if !isMissingDataset(err) {
			return err
		}
		if _, err := wc.CheckCompliance(); err != nil {
			return err
		}
		s := wc.Summary()
		if dashJSON {
			return printJSON(cmd.OutOrStdout(), s)
		}
		printSummary(cmd.OutOrStdout(), s)
		return nil
	},
}

func printSummary(out io.Writer, s dashboard.Summary) {
	fmt.Fprintf(out, "CDEs:               %d\n", s.TotalCDEs)
	fmt.Fprintf(out, "Enabled rules:      %d\n", s.EnabledRules)
	fmt.Fprintf(out, "Mean quality:       %s (%d columns)\n", fmtScore(s.MeanQuality), s.ScoredColumns)
	fmt.Fprintf(out, "Dataset quality:    %s\n", fmtScore(s.DatasetQuality))
	fmt.Fprintf(out, "Policy compliance:  %s (%d of %d requirements)\n", fmtScore(s.MeanCompliance), s.MatchedReqs, s.Requirements)
	fmt.Fprintf(out, "Issues:             %d", s.TotalIssues)
	for _, sev := range []rules.Severity{rules.SeverityError, rules.SeverityWarning} {
		if n := s.IssuesBySeverity[sev]; n > 0 {
			fmt.Fprintf(out, "  %s=%d", sev, n)
		}
	}
	fmt.Fprintln(out)
	if len(s.LowestColumns) > 0 {
		fmt.Fprintln(out, "Lowest scoring columns:")
		for _, c := range s.LowestColumns {
			fmt.Fprintf(out, "  %-24s %.3f\n", c.Column, c.Score)
		}
	}
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().BoolVar(&dashJSON, "json", false, "print the summary as JSON")
}
