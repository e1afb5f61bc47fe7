package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMerchantIDCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "merchant-id",
		Short: "Resolve the merchant certificate and print its identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			cert, err := client.Provider().Certificate()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Merchant identifier: %s\n", cert.MerchantIdentifier())
			fmt.Fprintf(out, "Thumbprint:          %s\n", cert.Thumbprint())
			fmt.Fprintf(out, "Subject:             %s\n", cert.Leaf.Subject)
			fmt.Fprintf(out, "Expires:             %s\n", cert.Leaf.NotAfter.UTC().Format("2006-01-02"))
			fmt.Fprintf(out, "Source:              %s\n", client.Provider().Source().Describe())
			return nil
		},
	}
}
