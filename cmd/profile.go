package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	profOutputPath string
	profJSON       bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Profile the workspace dataset (types, nulls, cardinality, ranges)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, wc, err := openWorkspace()
		if err != nil {
			return err
		}
		p, err := wc.Profile()
		if err != nil {
			return fmt.Errorf("no dataset loaded (use 'dqlens load'): %w", err)
		}
		if profJSON {
			return printJSON(cmd.OutOrStdout(), p)
		}
		md := p.Markdown()
		if profOutputPath != "" {
			if err := os.WriteFile(profOutputPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote profile to %s\n", profOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), md)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().StringVarP(&profOutputPath, "output", "o", "", "optional path to write the profile (Markdown)")
	profileCmd.Flags().BoolVar(&profJSON, "json", false, "print the profile as JSON")
}
