package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dcheck/config"
	"github.com/teranos/dcheck/plan"
	"github.com/teranos/dcheck/version"
)

// ValidateCmd checks a plan without running it
var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a plan without running it",
	Long: `Load a plan and report every problem that would stop 'dcheck run' before
its first table: missing run id, unknown severities in fail_on, duplicate
tables, unknown modules, config for modules a table does not run, and an
unsatisfied runner version constraint.`,
	Example: `  dcheck validate --spec plan.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeValidate(cmd.Context(), cmd.OutOrStdout(), validateSpec)
	},
}

var validateSpec string

func init() {
	ValidateCmd.Flags().StringVarP(&validateSpec, "spec", "s", "", "Plan file or go-getter source (YAML or TOML)")
	_ = ValidateCmd.MarkFlagRequired("spec")
}

func executeValidate(ctx context.Context, w io.Writer, src string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	registry, err := newRegistry(nil)
	if err != nil {
		return err
	}
	spec, err := loadPlan(ctx, src, plan.LoadOptions{
		DefaultOutputRoot:    cfg.Runner.OutputRoot,
		DefaultModuleTimeout: cfg.ModuleTimeout(),
		Catalog:              registry,
		RunnerVersion:        version.Get().Version,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(w, pterm.Success.Sprintf("Plan %s is valid: %d table(s), output %s",
		spec.RunID, spec.TaskCount(), spec.RunDir()))
	return nil
}
