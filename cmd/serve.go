package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/dqlens-cli/internal/metrics"
	"github.com/KaramelBytes/dqlens-cli/internal/server"
)

var (
	servePort     int
	serveSchedule string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workspace over HTTP (uploads, analysis, rules, dashboard, metrics)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace()
		if err != nil {
			return err
		}
		m := metrics.NewCollector(nil)
		wc, err := w.Open(settings(), m)
		if err != nil {
			return err
		}
		h, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		if h != nil {
			defer h.Close()
		}

		port, schedule := servePort, serveSchedule
		if cfg != nil {
			if port == 0 {
				port = cfg.Server.Port
			}
			if schedule == "" {
				schedule = cfg.Server.Schedule
			}
		}
		if port == 0 {
			port = 8080
		}
		dsOpt, err := datasetOptions()
		if err != nil {
			return err
		}
		srv, err := server.New(wc, m, h, server.Options{
			Workspace: w.Name,
			Dataset:   dsOpt,
			Policy:    policyOptions(),
			Schedule:  schedule,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "Serving workspace %q on %s\n", w.Name, addr)
		serveErr := srv.ListenAndServe(ctx, addr)

		// rules defined over HTTP outlive the process
		if err := saveRules(w, wc); err != nil {
			zap.L().Error("save workspace", zap.Error(err))
		}
		return serveErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config, 8080)")
	serveCmd.Flags().StringVar(&serveSchedule, "schedule", "", "cron spec for periodic re-checks (default from config)")
	addDatasetFlags(serveCmd)
}
