package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

func newPurgeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired validation results from the postgres cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()

			a, err := setup(ctx, *configPath)
			defer func() {
				err = joinShutdown(cmd, err)
			}()
			if err != nil {
				return err
			}

			p, ok := a.cache.(purger)
			if !ok {
				return fmt.Errorf("%w (backend %q)", errPurgeUnsupported, a.cfg.Cache.Backend)
			}

			n, err := p.Purge(ctx)
			if err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "purged expired validations", "rows", n)
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired validation results\n", n)
			return nil
		},
	}
}
