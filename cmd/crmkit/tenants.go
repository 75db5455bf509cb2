package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/crmkit/pkg/tenant"
	"github.com/dmitrymomot/crmkit/svc/migrator"
	"github.com/dmitrymomot/crmkit/svc/provision"
)

func newTenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage tenants and their databases",
	}
	cmd.AddCommand(newTenantsListCmd(), newTenantsMigrateCmd(), newTenantsCreateCmd())
	return cmd
}

func newTenantsListCmd() *cobra.Command {
	var (
		status         string
		includeDeleted bool
		format         string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := tenant.ListFilter{IncludeDeleted: includeDeleted}
			if status != "" {
				s, err := tenant.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = s
			}

			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ts, err := a.Registry.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printTenants(cmd.OutOrStdout(), ts, format)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only tenants with this status (pending, active, suspended, cancelled)")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "Include soft-deleted tenants")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: table or json")
	return cmd
}

func newTenantsMigrateCmd() *cobra.Command {
	var opts migrator.Options
	cmd := &cobra.Command{
		Use:   "migrate [slug]",
		Short: "Apply tenant migrations to every active tenant, or to one tenant",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Slug = args[0]
			}
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Migrator.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			if !report.OK() {
				return exitCode{report.Err()}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Fresh, "fresh", false, "Roll every migration back before applying them again")
	cmd.Flags().BoolVar(&opts.Seed, "seed", false, "Seed the role table after migrating")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Tenants migrated in parallel (default from TENANT_MIGRATE_CONCURRENCY)")
	return cmd
}

func newTenantsCreateCmd() *cobra.Command {
	var req provision.Request
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a tenant with its database and owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Provisioner.Provision(cmd.Context(), req)
			if err != nil {
				if provision.IsKind(err, provision.PostSetupFailed) {
					return fmt.Errorf("tenant registered but left suspended: %w", err)
				}
				return err
			}
			printProvisioned(cmd.OutOrStdout(), res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "Company name")
	f.StringVar(&req.Slug, "slug", "", "Explicit slug (derived from the name when empty)")
	f.StringVar(&req.Owner.Name, "owner-name", "", "Owner display name (defaults to the company name)")
	f.StringVar(&req.Owner.Email, "email", "", "Owner email")
	f.StringVar(&req.Owner.Password, "password", "", "Owner password (generated when empty)")
	f.StringSliceVar(&req.Modules, "module", nil, "Enabled module, repeatable (defaults from PROVISION_DEFAULT_MODULES)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	cmd.PreRun = func(*cobra.Command, []string) {
		if req.Owner.Name == "" {
			req.Owner.Name = req.Name
		}
	}
	return cmd
}
