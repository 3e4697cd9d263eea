package main

import (
	"fmt"

	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/repository"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantDescription string

var createTenantCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := repository.Open(cfg.DBDriver, cfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		repo := repository.NewManager(db)
		resolver := auth.NewResolver(repo.Users(), repo.Memberships(), repo.Tenants()).WithLogger(logger)

		tenant, err := resolver.CreateTenant(cmd.Context(), args[0], tenantDescription)
		if err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Tenant created: %s (ID: %s)\n", tenant.Name, tenant.ID)
		return nil
	},
}

func init() {
	createTenantCmd.Flags().StringVar(&tenantDescription, "description", "", "tenant description")
	tenantCmd.AddCommand(createTenantCmd)
	rootCmd.AddCommand(tenantCmd)
}
