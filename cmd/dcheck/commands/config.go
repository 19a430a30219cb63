package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dcheck/config"
)

// ConfigCmd manages runner configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialise runner configuration",
	Long: `Runner configuration covers what plans do not: the default output root,
the module timeout, the task throttle, log format and the table source.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (DCHECK_* prefix, e.g. DCHECK_SOURCE_DSN)
3. Project config (./dcheck.toml, searched upwards)
4. User config (~/.dcheck/config.toml)
5. System config (/etc/dcheck/config.toml)
6. Default values`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		rendered, err := config.Render(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# dcheck configuration\n%s", rendered)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configInitPath
		_, statErr := os.Stat(path)
		if err := config.WriteStarter(path, config.Default()); err != nil {
			return err
		}
		if statErr == nil {
			pterm.Info.Printf("Previous %s kept as %s.back1\n", path, path)
		}
		pterm.Success.Printf("Wrote %s\n", path)
		return nil
	},
}

var configInitPath string

func init() {
	configInitCmd.Flags().StringVar(&configInitPath, "path", config.ProjectConfigName, "Where to write the configuration")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configInitCmd)
}
