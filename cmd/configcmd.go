package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haneul-labs/mailaction/config"
)

// ConfigCmd represents the config command group.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage the mailaction configuration file.

Configuration is loaded from ~/.mailaction/config.yaml and overridden by
MAILACTION_* environment variables. Service keys are managed separately
with 'mailaction auth'.`,
}

// configShowCmd prints the effective configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		path, _ := config.ConfigPath()
		fmt.Fprintf(cmd.OutOrStdout(), "# %s (with environment overrides applied)\n", path)

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling configuration: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		fmt.Fprintf(cmd.OutOrStdout(), "call_timeout: %s\n", cfg.Completion.Timeout)
		return nil
	},
}

// configInitCmd writes a default configuration file.
var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
		if err := config.Save(config.DefaultConfig()); err != nil {
			return fmt.Errorf("writing configuration: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "Edit it to set your service endpoints and recipient, then run 'mailaction auth login'.")
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configInitCmd)
}
