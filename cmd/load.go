package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dqlens-cli/internal/dataset"
)

var (
	dsDelimiter  string
	dsDecimal    string
	dsThousands  string
	dsSheetName  string
	dsSheetIndex int
	dsMaxRows    int
	dsNullValues []string
)

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Attach a dataset (CSV/TSV/JSON/XLSX) to the workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace()
		if err != nil {
			return err
		}
		opt, err := datasetOptions()
		if err != nil {
			return err
		}
		ds, err := dataset.LoadFile(args[0], opt)
		if err != nil {
			return err
		}
		if err := w.SetDataset(args[0], opt); err != nil {
			return err
		}
		if err := w.Save(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Loaded %s: %d rows, %d columns\n", ds.Name, ds.Rows(), len(ds.Columns))
		for _, warn := range ds.Warnings {
			fmt.Fprintf(out, "⚠ %s\n", warn)
		}
		return nil
	},
}

// addDatasetFlags registers the dataset loading flags on c.
func addDatasetFlags(c *cobra.Command) {
	c.Flags().StringVar(&dsDelimiter, "delimiter", "", "CSV delimiter: ',', ';', 'tab' or '|' (default: sniffed)")
	c.Flags().StringVar(&dsDecimal, "decimal", "", "decimal separator: '.' or 'comma' (default: auto)")
	c.Flags().StringVar(&dsThousands, "thousands", "", "thousands separator: ',', '.' or 'space'")
	c.Flags().StringVar(&dsSheetName, "sheet-name", "", "XLSX sheet name")
	c.Flags().IntVar(&dsSheetIndex, "sheet-index", 0, "XLSX sheet index (1-based)")
	c.Flags().IntVar(&dsMaxRows, "max-rows", 0, "maximum rows to load (0 uses config)")
	c.Flags().StringSliceVar(&dsNullValues, "null-values", nil, "comma-separated cell spellings read as missing (default: null,n/a,#n/a)")
}

// datasetOptions merges config defaults with the dataset flags.
func datasetOptions() (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	delim := ""
	if cfg != nil {
		if cfg.Dataset.MaxRows > 0 {
			opt.MaxRows = cfg.Dataset.MaxRows
		}
		if cfg.Dataset.SheetIndex > 0 {
			opt.SheetIndex = cfg.Dataset.SheetIndex
		}
		opt.SheetName = cfg.Dataset.SheetName
		delim = cfg.Dataset.Delimiter
		if len(cfg.Dataset.NullValues) > 0 {
			opt.NullValues = cfg.Dataset.NullValues
		}
	}
	if len(dsNullValues) > 0 {
		opt.NullValues = dsNullValues
	}
	if dsMaxRows > 0 {
		opt.MaxRows = dsMaxRows
	}
	if dsSheetName != "" {
		opt.SheetName = dsSheetName
	}
	if dsSheetIndex > 0 {
		opt.SheetIndex = dsSheetIndex
	}
	if dsDelimiter != "" {
		delim = dsDelimiter
	}
	switch delim {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	case "|":
		opt.Delimiter = '|'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", delim)
	}
	// Locale separators
	switch strings.ToLower(strings.TrimSpace(dsDecimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", dsDecimal)
	}
	switch strings.ToLower(dsThousands) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", dsThousands)
	}
	return opt, nil
}

func init() {
	rootCmd.AddCommand(loadCmd)
	addDatasetFlags(loadCmd)
}
