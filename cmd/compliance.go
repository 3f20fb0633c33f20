package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dqlens-cli/internal/compliance"
)

var complianceJSON bool

var complianceCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Map the workspace policy onto the rule set and score each requirement",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, wc, err := openWorkspace()
		if err != nil {
			return err
		}
		if wc.Policy() == "" {
			return errors.New("no policy attached (use 'dqlens policy <file>')")
		}
		if _, err := wc.IdentifyCDEs(); err != nil && !isMissingDataset(err) {
			return err
		}
		rep, err := wc.CheckCompliance()
		if err != nil {
			return err
		}
		if complianceJSON {
			return printJSON(cmd.OutOrStdout(), rep)
		}
		out := cmd.OutOrStdout()
		for _, r := range rep.Requirements {
			mark := "✗"
			if len(r.MatchedRules) > 0 {
				mark = "✓"
			}
			fmt.Fprintf(out, "%s %.2f  %s\n", mark, r.Score, r.Text)
			if len(r.MatchedRules) > 0 {
				fmt.Fprintf(out, "        rules: %s\n", strings.Join(r.MatchedRules, ", "))
			}
		}
		fmt.Fprintf(out, "Policy compliance: %s (%d of %d requirements matched)\n",
			fmtScore(rep.Score), rep.Matched, len(rep.Requirements))
		return nil
	},
}

func newMapper() *compliance.Mapper {
	return compliance.New(settings().Compliance)
}

func init() {
	rootCmd.AddCommand(complianceCmd)
	complianceCmd.Flags().BoolVar(&complianceJSON, "json", false, "print the report as JSON")
}
