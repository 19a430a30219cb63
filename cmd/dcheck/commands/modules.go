package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dcheck/modules"
)

var moduleDescriptions = map[string]string{
	modules.CoreQualityName: "row count, required columns, null ratios",
	modules.GDPRPIIName:     "personal data in sampled text columns",
}

// ModulesCmd lists the built-in validation modules
var ModulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the built-in validation modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := newRegistry(nil)
		if err != nil {
			return err
		}
		data := pterm.TableData{{"Module", "Checks"}}
		for _, name := range registry.Names() {
			data = append(data, []string{name, moduleDescriptions[name]})
		}
		table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), table)
		return nil
	},
}
