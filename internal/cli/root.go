package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configFile string
	envFile    string
	addr       string
}

func newRootCmd(version string) *cobra.Command {
	o := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "applepayjs",
		Short: "Apple Pay JS merchant validation demo",
		Long: `applepayjs serves a page with an Apple Pay button and validates merchant
sessions with Apple's gateway using the merchant identity certificate.`,
		// Default action is serve
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), o)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&o.configFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&o.envFile, "env-file", "", "dotenv file to load (default .env)")
	rootCmd.Flags().StringVar(&o.addr, "addr", "", "listen address, overrides server.addr")

	rootCmd.AddCommand(newServeCmd(o))
	rootCmd.AddCommand(newMerchantIDCmd(o))
	rootCmd.AddCommand(newConfigCmd(o))
	rootCmd.AddCommand(newVersionCmd(version))
	return rootCmd
}

// Execute runs the root command
func Execute(version string) error {
	if err := newRootCmd(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
