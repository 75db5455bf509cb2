package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/crmkit/internal/app"
	"github.com/dmitrymomot/crmkit/pkg/config"
)

func newRootCmd() *cobra.Command {
	var envFiles []string

	cmd := &cobra.Command{
		Use:           "crmkit",
		Short:         "Multi-tenant CRM service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadEnv(envFiles...)
		},
	}
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Env files to load before reading the environment")

	cmd.AddCommand(
		newServeCmd(),
		newLandlordCmd(),
		newTenantsCmd(),
	)
	return cmd
}

// bootstrap loads configuration and wires the application. The caller owns
// the returned App and must Close it.
func bootstrap(ctx context.Context) (*app.App, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := app.NewLogger(cfg.Logger)
	return app.New(ctx, cfg, log)
}
