package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "tokencheck",
		Short: "Verify commerce API bearer tokens",
		Long: `tokencheck runs the same verification as the authn interceptor:
structural checks, remote validation through the configured cache, and an
optional role requirement.

Configuration is read from an optional TOML file and COMMERCEAUTH_*
environment variables, e.g. COMMERCEAUTH_REMOTE__BASE_URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	root.AddCommand(
		newVerifyCmd(&configPath),
		newPurgeCmd(&configPath),
	)
	return root
}
