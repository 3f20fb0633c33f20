package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dqlens-cli/internal/utils"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export profile, CDEs, rules, results and compliance as a JSON report",
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
		rep := wc.Report()
		if exportOut == "" {
			return printJSON(cmd.OutOrStdout(), rep)
		}
		data, err := utils.PrettyJSON(rep)
		if err != nil {
			return err
		}
		if err := utils.SafeWriteFile(exportOut, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote report to %s\n", exportOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "write the report to a file instead of stdout")
}
