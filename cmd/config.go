package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "github.com/KaramelBytes/dqlens-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set dqlens configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigKey(cfg, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s\n", key)
		return nil
	},
}

func setConfigKey(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "workspaces_dir":
		c.WorkspacesDir = val
	case "log.level":
		c.Log.Level = val
	case "log.format":
		if val != "json" && val != "console" {
			return fmt.Errorf("invalid log.format: %s (use json or console)", val)
		}
		c.Log.Format = val
	case "engine.cde.threshold":
		return setFloat(&c.Engine.CDE.Threshold, key, val, 0, 1)
	case "engine.cde.completeness_weight":
		return setFloat(&c.Engine.CDE.CompletenessWeight, key, val, 0, 1)
	case "engine.cde.distinct_weight":
		return setFloat(&c.Engine.CDE.DistinctWeight, key, val, 0, 1)
	case "engine.cde.keyword_weight":
		return setFloat(&c.Engine.CDE.KeywordWeight, key, val, 0, 1)
	case "engine.recommend.range_margin":
		return setFloat(&c.Engine.Recommend.RangeMargin, key, val, 0, 10)
	case "engine.recommend.unique_ratio":
		return setFloat(&c.Engine.Recommend.UniqueRatio, key, val, 0, 1)
	case "engine.recommend.enum_ratio":
		return setFloat(&c.Engine.Recommend.EnumRatio, key, val, 0, 1)
	case "engine.compliance.threshold":
		return setFloat(&c.Engine.Compliance.Threshold, key, val, 0, 1)
	case "engine.dashboard.top_n":
		return setInt(&c.Engine.Dashboard.TopN, key, val)
	case "dataset.max_rows":
		return setInt(&c.Dataset.MaxRows, key, val)
	case "dataset.delimiter":
		c.Dataset.Delimiter = val
	case "dataset.sample_values":
		return setInt(&c.Dataset.SampleValues, key, val)
	case "policy.pdftotext_path":
		c.Policy.PDFToTextPath = val
	case "server.port":
		return setInt(&c.Server.Port, key, val)
	case "server.schedule":
		c.Server.Schedule = val
	case "history.path":
		c.History.Path = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func setFloat(dst *float64, key, val string, lo, hi float64) error {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < lo || f > hi {
		return fmt.Errorf("invalid %s: %s (want a number in [%g, %g])", key, val, lo, hi)
	}
	*dst = f
	return nil
}

func setInt(dst *int, key, val string) error {
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid %s: %s (want a non-negative integer)", key, val)
	}
	*dst = n
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
