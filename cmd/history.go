package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded check runs for the workspace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace()
		if err != nil {
			return err
		}
		h, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		if h == nil {
			return errors.New("run history is disabled (set history.path in the config)")
		}
		defer h.Close()
		runs, err := h.List(cmd.Context(), w.Name, historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(cmd.OutOrStdout(), runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tROWS\tRULES\tISSUES\tQUALITY\tCOMPLIANCE")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Rows, r.Rules, r.Issues,
				fmtScore(r.Quality), fmtScore(r.Compliance))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print runs as JSON")
}
