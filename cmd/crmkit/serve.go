package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/crmkit/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			logger.SetAsDefault(a.Log)

			if migrate {
				if err := a.MigrateLandlord(ctx); err != nil {
					return err
				}
			}
			a.Log.InfoContext(ctx, "starting server", "addr", a.Config.HTTP.Addr, "resolution", a.Config.Resolver.Strategy)
			return a.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply landlord migrations before serving")
	return cmd
}
