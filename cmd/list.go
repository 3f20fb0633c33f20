package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dqlens-cli/internal/workspace"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspacesDir()
		if err != nil {
			return err
		}
		dirs, err := os.ReadDir(root)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		found := false
		for _, e := range dirs {
			if !e.IsDir() {
				continue
			}
			w, err := workspace.Load(filepath.Join(root, e.Name()))
			if err != nil {
				continue
			}
			found = true
			data := "(no dataset)"
			if w.Dataset != nil {
				data = filepath.Base(w.Dataset.Path)
			}
			fmt.Fprintf(out, "- %s: %s, %d rules", e.Name(), data, len(w.Rules))
			if w.Description != "" {
				fmt.Fprintf(out, " (%s)", w.Description)
			}
			fmt.Fprintln(out)
		}
		if !found {
			fmt.Fprintln(out, "(no workspaces)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
