package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"physics-race-service/internal/config"
	"physics-race-service/internal/fixture"
	"physics-race-service/internal/infra/postgres"
	infraredis "physics-race-service/internal/infra/redis"
)

// NewSeedCmd writes the fixture's questions and participants to the configured stores.
func NewSeedCmd(configPath *string) *cobra.Command {
	var fixturePath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the YAML fixture into Postgres/Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if fixturePath != "" {
				cfg.Catalog.Fixture = fixturePath
			}
			return runSeed(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "fixture file (defaults to catalog.fixture)")
	return cmd
}

func runSeed(ctx context.Context, cfg config.Config) error {
	if cfg.Catalog.Fixture == "" {
		return fmt.Errorf("no fixture configured")
	}
	fx, err := fixture.Load(cfg.Catalog.Fixture)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" && cfg.Redis.Addr == "" {
		return fmt.Errorf("seed needs postgres or redis; in-memory stores load the fixture at start")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := postgres.NewCatalogLoader(pool).ReplaceQuestions(ctx, fx.Questions); err != nil {
			return err
		}
		if err := fx.SeedParticipants(ctx, postgres.NewParticipantStore(pool)); err != nil {
			return err
		}
		log.Printf("seeded postgres: %d questions, %d participants", len(fx.Questions), len(fx.Participants))
		return nil
	}

	client := newRedisClient(cfg)
	defer client.Close()
	if err := fx.SeedParticipants(ctx, infraredis.NewParticipantStore(client)); err != nil {
		return err
	}
	log.Printf("seeded redis: %d participants", len(fx.Participants))
	return nil
}
