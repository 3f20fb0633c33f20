package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dqlens-cli/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy <file>",
	Short: "Attach a policy document (TXT/MD/DOCX/PDF) to the workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace()
		if err != nil {
			return err
		}
		text, err := policy.ExtractFile(cmd.Context(), args[0], policyOptions())
		if err != nil {
			return err
		}
		w.SetPolicy(args[0], text)
		if err := w.Save(); err != nil {
			return err
		}
		reqs := len(newMapper().Requirements(text))
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Policy attached: %d characters, %d candidate requirements\n", len([]rune(text)), reqs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
}
