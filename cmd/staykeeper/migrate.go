package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"staykeeper/internal/infra/config"
	"staykeeper/internal/infra/db/postgres"
	"staykeeper/internal/infra/obs"
)

func newMigrateCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.PostgresURL == "" {
				return fmt.Errorf("POSTGRES_URL is required for migrate")
			}
			logger := obs.NewLogger(cfg.Env)
			ctx := cmd.Context()

			pool, err := postgres.Open(ctx, cfg.PostgresURL)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pool.Close()

			applied, err := postgres.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "count", len(applied), "files", applied)
			if seed {
				if err := postgres.NewCatalog(pool).Seed(ctx, cfg.CatalogAmenities, cfg.CatalogTypes); err != nil {
					return fmt.Errorf("seed catalog: %w", err)
				}
				logger.Info("catalog seeded", "amenities", len(cfg.CatalogAmenities), "types", len(cfg.CatalogTypes))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "insert CATALOG_AMENITIES and CATALOG_TYPES")
	return cmd
}
