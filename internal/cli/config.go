package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "# Effective configuration (defaults + file + environment)")
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
