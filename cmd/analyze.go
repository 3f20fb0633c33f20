package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
	"github.com/KaramelBytes/dqlens-cli/internal/history"
	"github.com/KaramelBytes/dqlens-cli/internal/policy"
	"github.com/KaramelBytes/dqlens-cli/internal/workspace"
)

var (
	anaDataPath   string
	anaPolicyPath string
	anaJSON       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Identify CDEs, recommend rules, run checks and score policy compliance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace()
		if err != nil {
			return err
		}
		opt, err := datasetOptions()
		if err != nil {
			return err
		}

		// dataset and policy load independently
		var (
			ds         *dataset.Dataset
			policyText string
		)
		g, gctx := errgroup.WithContext(cmd.Context())
		if anaDataPath != "" {
			g.Go(func() error {
				var err error
				ds, err = dataset.LoadFile(anaDataPath, opt)
				return err
			})
		}
		if anaPolicyPath != "" {
			g.Go(func() error {
				var err error
				policyText, err = policy.ExtractFile(gctx, anaPolicyPath, policyOptions())
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if ds != nil {
			if err := w.SetDataset(anaDataPath, opt); err != nil {
				return err
			}
		}
		if anaPolicyPath != "" {
			w.SetPolicy(anaPolicyPath, policyText)
		}

		wc, err := w.OpenWith(settings(), nil, ds)
		if err != nil {
			return err
		}
		a, err := wc.Analyze()
		if isMissingDataset(err) {
			return fmt.Errorf("no dataset loaded (use --data or 'dqlens load'): %w", err)
		}
		if err != nil {
			return err
		}
		if err := saveRules(w, wc); err != nil {
			return err
		}
		recordRun(cmd.Context(), history.NewRun(w.Name, a.Result, a.Compliance))

		if anaJSON {
			return printJSON(cmd.OutOrStdout(), a)
		}
		printAnalysis(cmd.OutOrStdout(), a)
		return nil
	},
}

func printAnalysis(out io.Writer, a *workspace.Analysis) {
	fmt.Fprintf(out, "Critical data elements (%d):\n", len(a.CDEs))
	for _, c := range a.CDEs {
		fmt.Fprintf(out, "  %-24s %.2f  %s\n", c.Column, c.Score, c.Reason)
	}
	fmt.Fprintf(out, "Recommended rules (%d):\n", len(a.Recommended))
	for _, r := range a.Recommended {
		fmt.Fprintf(out, "  %s  %s\n", r.ID, r)
	}
	if a.Result != nil {
		fmt.Fprintf(out, "Dataset quality: %s (%d issues)\n", fmtScore(a.Result.DatasetScore), len(a.Result.Issues))
	}
	if a.Compliance != nil {
		fmt.Fprintf(out, "Policy compliance: %s (%d of %d requirements matched)\n",
			fmtScore(a.Compliance.Score), a.Compliance.Matched, len(a.Compliance.Requirements))
	}
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&anaDataPath, "data", "", "dataset file to load before analysis")
	analyzeCmd.Flags().StringVar(&anaPolicyPath, "policy", "", "policy document to load before analysis")
	analyzeCmd.Flags().BoolVar(&anaJSON, "json", false, "print the analysis as JSON")
	addDatasetFlags(analyzeCmd)
}
