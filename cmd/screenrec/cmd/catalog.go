package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/screenrec/internal/database"
	"github.com/jmylchreest/screenrec/internal/database/migrations"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Recording catalog maintenance",
}

var catalogStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog connectivity and migration status",
	RunE:  runCatalogStatus,
}

var catalogRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the most recent catalog migration",
	Long: `Roll back the most recent catalog migration.

Migrations are applied again automatically the next time the catalog is
opened, so this is mainly useful before downgrading screenrec.`,
	RunE: runCatalogRollback,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogStatusCmd, catalogRollbackCmd)
}

func openCatalog(ctx context.Context) (*database.DB, *migrations.Migrator, error) {
	db, err := database.New(ctx, cfg.Catalog.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening catalog: %w", err)
	}
	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	return db, migrator, nil
}

func runCatalogStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	db, migrator, err := openCatalog(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		return fmt.Errorf("pinging catalog: %w", err)
	}

	statuses, err := migrator.Status(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "driver: %s\n\n", db.Driver())

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED\tDESCRIPTION")
	for _, s := range statuses {
		applied := "pending"
		if s.Applied() {
			applied = s.AppliedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Version, applied, s.Description)
	}
	return tw.Flush()
}

func runCatalogRollback(cmd *cobra.Command, _ []string) error {
	db, migrator, err := openCatalog(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	return migrator.Down(cmd.Context())
}
