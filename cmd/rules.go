package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dqlens-cli/internal/rules"
	"github.com/KaramelBytes/dqlens-cli/internal/utils"
	"github.com/KaramelBytes/dqlens-cli/internal/workspace"
)

var (
	ruleColumn          string
	ruleKind            string
	ruleMin             string
	ruleMax             string
	ruleMinDate         string
	ruleMaxDate         string
	rulePattern         string
	ruleValues          []string
	ruleCaseInsensitive bool
	ruleExpression      string
	ruleSeverity        string
	ruleDescription     string
	ruleDisabled        bool

	rulesJSON      bool
	rulesExportOut string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the workspace rule set",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace()
		if err != nil {
			return err
		}
		if rulesJSON {
			return printJSON(cmd.OutOrStdout(), w.Rules)
		}
		if len(w.Rules) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No rules. Run 'dqlens analyze' or 'dqlens rules add'.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCOLUMN\tKIND\tCONSTRAINT\tSEVERITY\tORIGIN\tENABLED")
		for _, r := range w.Rules {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
				r.ID, r.Column, r.Kind, r.Constraint(), r.EffectiveSeverity(), r.Origin, r.Enabled)
		}
		return tw.Flush()
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Define a rule",
	Example: `  dqlens rules add --column age --kind range --min 0 --max 120
  dqlens rules add --column country --kind allowed_values --values DE,FR,IT
  dqlens rules add --column total --kind custom_expression --expr 'value >= row.subtotal'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := ruleFromFlags()
		if err != nil {
			return err
		}
		w, wc, err := ruleContext()
		if err != nil {
			return err
		}
		stored, err := wc.AddRule(r)
		if err != nil {
			return err
		}
		if err := saveRules(w, wc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Added rule %s: %s\n", stored.ID, stored)
		return nil
	},
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, wc, err := ruleContext()
		if err != nil {
			return err
		}
		if err := wc.RemoveRule(args[0]); err != nil {
			return err
		}
		if err := saveRules(w, wc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed rule %s\n", args[0])
		return nil
	},
}

func toggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, wc, err := ruleContext()
			if err != nil {
				return err
			}
			if err := wc.SetRuleEnabled(args[0], enabled); err != nil {
				return err
			}
			if err := saveRules(w, wc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Rule %s %sd\n", args[0], use)
			return nil
		},
	}
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import a YAML rule set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		rs, err := rules.ParseYAML(b)
		if err != nil {
			return err
		}
		w, wc, err := ruleContext()
		if err != nil {
			return err
		}
		added := 0
		for _, r := range rs {
			if _, err := wc.AddRule(r); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %s: %v\n", r, err)
				continue
			}
			added++
		}
		if err := saveRules(w, wc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d of %d rules\n", added, len(rs))
		return nil
	},
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the rule set as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadWorkspace()
		if err != nil {
			return err
		}
		b, err := rules.MarshalYAML(w.Rules)
		if err != nil {
			return err
		}
		if rulesExportOut == "" {
			_, err = cmd.OutOrStdout().Write(b)
			return err
		}
		if err := utils.SafeWriteFile(rulesExportOut, b); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d rules to %s\n", len(w.Rules), rulesExportOut)
		return nil
	},
}

// ruleContext restores the rule store without loading the dataset.
func ruleContext() (*workspace.Workspace, *workspace.Context, error) {
	w, err := loadWorkspace()
	if err != nil {
		return nil, nil, err
	}
	wc := workspace.NewContext(settings(), nil)
	if err := wc.RestoreRules(w.Rules, w.Retired); err != nil {
		return nil, nil, err
	}
	return w, wc, nil
}

func ruleFromFlags() (rules.Rule, error) {
	kind, err := rules.ParseKind(ruleKind)
	if err != nil {
		return rules.Rule{}, err
	}
	r := rules.Rule{
		Column:      strings.TrimSpace(ruleColumn),
		Kind:        kind,
		Enabled:     !ruleDisabled,
		Origin:      rules.OriginUserDefined,
		Severity:    rules.Severity(strings.ToLower(ruleSeverity)),
		Description: ruleDescription,
		Params: rules.Params{
			MinDate:         ruleMinDate,
			MaxDate:         ruleMaxDate,
			Pattern:         rulePattern,
			Values:          ruleValues,
			CaseInsensitive: ruleCaseInsensitive,
			Expression:      ruleExpression,
		},
	}
	if r.Params.Min, err = parseBound("min", ruleMin); err != nil {
		return rules.Rule{}, err
	}
	if r.Params.Max, err = parseBound("max", ruleMax); err != nil {
		return rules.Rule{}, err
	}
	return r, r.Validate()
}

func parseBound(name, s string) (*float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: --%s %q is not a number", rules.ErrInvalidRuleParameters, name, s)
	}
	return &f, nil
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesRemoveCmd,
		toggleCmd("enable", true), toggleCmd("disable", false),
		rulesImportCmd, rulesExportCmd)

	rulesListCmd.Flags().BoolVar(&rulesJSON, "json", false, "print rules as JSON")
	rulesExportCmd.Flags().StringVarP(&rulesExportOut, "output", "o", "", "write YAML to file instead of stdout")

	f := rulesAddCmd.Flags()
	f.StringVar(&ruleColumn, "column", "", "column the rule applies to (required)")
	f.StringVar(&ruleKind, "kind", "", "rule kind: not_null|range|regex|unique|allowed_values|custom_expression (required)")
	f.StringVar(&ruleMin, "min", "", "range lower bound")
	f.StringVar(&ruleMax, "max", "", "range upper bound")
	f.StringVar(&ruleMinDate, "min-date", "", "date range lower bound (YYYY-MM-DD)")
	f.StringVar(&ruleMaxDate, "max-date", "", "date range upper bound (YYYY-MM-DD)")
	f.StringVar(&rulePattern, "pattern", "", "regular expression for regex rules")
	f.StringSliceVar(&ruleValues, "values", nil, "comma-separated allowed values")
	f.BoolVar(&ruleCaseInsensitive, "case-insensitive", false, "compare allowed values case-insensitively")
	f.StringVar(&ruleExpression, "expr", "", "CEL expression for custom_expression rules")
	f.StringVar(&ruleSeverity, "severity", "", "warning or error (default depends on kind)")
	f.StringVar(&ruleDescription, "description", "", "free-form description")
	f.BoolVar(&ruleDisabled, "disabled", false, "add the rule disabled")
	_ = rulesAddCmd.MarkFlagRequired("column")
	_ = rulesAddCmd.MarkFlagRequired("kind")
}
