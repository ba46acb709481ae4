package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragsync/internal/config"
	"github.com/cloo-solutions/ragsync/internal/database"
	"github.com/cloo-solutions/ragsync/internal/domain"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Creates or upgrades the pgvector collection registry and ingest run tables.",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (default $RAGSYNC_DATABASE_URL)")

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if url, _ := cmd.Flags().GetString("database-url"); url != "" {
		cfg.DatabaseURL = url
	}
	if !cfg.HasDatabase() {
		return domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("RAGSYNC_DATABASE_URL or --database-url is required"))
	}

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Database at migration version %d\n", version)
	return nil
}
