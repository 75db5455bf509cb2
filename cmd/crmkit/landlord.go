package main

import (
	"github.com/spf13/cobra"
)

func newLandlordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "landlord",
		Short: "Manage the landlord database",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply landlord migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.MigrateLandlord(cmd.Context())
		},
	})
	return cmd
}
