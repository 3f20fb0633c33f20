package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/dqlens-cli/internal/config"
	"github.com/KaramelBytes/dqlens-cli/internal/history"
	"github.com/KaramelBytes/dqlens-cli/internal/policy"
	"github.com/KaramelBytes/dqlens-cli/internal/utils"
	"github.com/KaramelBytes/dqlens-cli/internal/workspace"
)

var (
	cfgFile       string
	debug         bool
	workspaceName string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "dqlens",
	Short: "dqlens: data quality rules and policy compliance for tabular data",
	Long: `dqlens profiles a dataset, picks its critical data elements, recommends
quality rules, runs them and maps the results onto a policy document.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.dqlens/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspaceName, "workspace", "w", "", "workspace name (default: the workspace containing the current directory)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = &cfgpkg.Global{}
	}
	cfg = c
	logCfg := cfg.Log
	if debug {
		logCfg.Level = "debug"
	}
	if err := cfgpkg.InitLogger(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
	}
}

func settings() workspace.Settings {
	s := workspace.DefaultSettings()
	if cfg == nil {
		return s
	}
	if cfg.Engine.CDE.Threshold > 0 {
		s.CDE = cfg.Engine.CDE
	}
	if cfg.Engine.Recommend.UniqueRatio > 0 {
		s.Recommend = cfg.Engine.Recommend
	}
	if cfg.Engine.Compliance.Threshold > 0 {
		s.Compliance = cfg.Engine.Compliance
	}
	if cfg.Engine.Dashboard.TopN > 0 {
		s.TopN = cfg.Engine.Dashboard.TopN
	}
	if cfg.Dataset.SampleValues > 0 {
		s.Profile.SampleValues = cfg.Dataset.SampleValues
	}
	return s
}

func policyOptions() policy.Options {
	opt := policy.DefaultOptions()
	if cfg != nil && cfg.Policy.PDFToTextPath != "" {
		opt.PDFToText = cfg.Policy.PDFToTextPath
	}
	return opt
}

func workspacesDir() (string, error) {
	dir := ""
	if cfg != nil {
		dir = cfg.WorkspacesDir
	}
	if dir == "" {
		base, err := cfgpkg.Dir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "workspaces")
	}
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", eris.Wrap(err, "resolve home dir")
		}
		dir = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(dir, "~"), "/"))
	}
	dir = filepath.Clean(dir)
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func resolveWorkspaceDirByName(name string) (string, error) {
	if name == "" {
		return "", errors.New("workspace name is required")
	}
	root, err := workspacesDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

// currentWorkspaceDir resolves --workspace, falling back to the workspace
// that contains the working directory.
func currentWorkspaceDir() (string, error) {
	if workspaceName != "" {
		return resolveWorkspaceDirByName(workspaceName)
	}
	dir, err := utils.FindRoot("", workspace.FileName)
	if err != nil {
		return "", errors.New("no workspace selected: pass --workspace or run inside a workspace directory")
	}
	return dir, nil
}

func loadWorkspace() (*workspace.Workspace, error) {
	dir, err := currentWorkspaceDir()
	if err != nil {
		return nil, err
	}
	return workspace.Load(dir)
}

// openWorkspace loads the workspace and builds its analysis context.
func openWorkspace() (*workspace.Workspace, *workspace.Context, error) {
	w, err := loadWorkspace()
	if err != nil {
		return nil, nil, err
	}
	wc, err := w.Open(settings(), nil)
	if err != nil {
		return nil, nil, err
	}
	return w, wc, nil
}

// saveRules persists the context's rule state into the workspace.
func saveRules(w *workspace.Workspace, wc *workspace.Context) error {
	w.Capture(wc)
	return w.Save()
}

// openHistory returns nil when history is disabled.
func openHistory(ctx context.Context) (*history.Store, error) {
	if cfg == nil || cfg.History.Path == "" {
		return nil, nil
	}
	if err := utils.EnsureDir(filepath.Dir(cfg.History.Path)); err != nil {
		return nil, err
	}
	return history.Open(ctx, cfg.History.Path)
}

func recordRun(ctx context.Context, run history.Run) {
	h, err := openHistory(ctx)
	if err != nil {
		zap.L().Warn("open history", zap.Error(err))
		return
	}
	if h == nil {
		return
	}
	defer h.Close()
	if _, err := h.Record(ctx, run); err != nil {
		zap.L().Warn("record run", zap.Error(err))
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtScore(f *float64) string {
	if f == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *f)
}
