package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"physics-race-service/internal/app"
	"physics-race-service/internal/catalog"
	"physics-race-service/internal/config"
	"physics-race-service/internal/engine"
	"physics-race-service/internal/fixture"
	"physics-race-service/internal/infra/memory"
	"physics-race-service/internal/infra/postgres"
	infraredis "physics-race-service/internal/infra/redis"
	transport "physics-race-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the competition server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stores is the backend selection: Postgres for records when configured,
// Redis for caching and fan-out when configured, in-memory otherwise.
type stores struct {
	catalogs     app.CatalogRepository
	participants app.ParticipantStore
	attempts     app.AttemptLog
	feed         app.ChangeFeed
	presence     app.PresenceRegistry
	closers      []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	comp := cfg.Competition
	syncer := app.NewSynchronizer(st.participants, st.attempts, st.feed, app.Options{
		PollInterval:    config.TTLDuration(comp.PollInterval, app.DefaultPollInterval),
		LeaderboardSize: comp.LeaderboardSize,
	})
	competition := app.NewCompetition(syncer, st.catalogs, st.presence, engineConfig(comp))

	wsHandler := transport.NewWSHandler(competition)
	lbHandler := transport.NewLeaderboardHandler(syncer)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/leaderboard", lbHandler.ServeJSON)
	mux.HandleFunc("/leaderboard/ws", lbHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return syncer.Run(gctx)
	})
	g.Go(func() error {
		log.Printf("starting competition server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	st := &stores{}
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var fx *fixture.Fixture
	if cfg.Catalog.Fixture != "" {
		loaded, err := fixture.Load(cfg.Catalog.Fixture)
		if err != nil {
			return nil, err
		}
		fx = loaded
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = newRedisClient(cfg)
		st.closers = append(st.closers, func() { _ = redisClient.Close() })
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
	}

	var loader catalog.Loader
	switch {
	case pool != nil:
		loader = postgres.NewCatalogLoader(pool)
	case fx != nil:
		loader = fx
	default:
		st.close()
		return nil, errors.New("no question source: configure postgres or catalog.fixture")
	}

	switch {
	case pool != nil:
		db := postgres.OpenBun(cfg.Postgres.URL)
		st.closers = append(st.closers, func() { _ = db.Close() })
		st.participants = postgres.NewParticipantStore(pool)
		st.attempts = postgres.NewAttemptLog(db)
	case redisClient != nil:
		st.participants = infraredis.NewParticipantStore(redisClient)
		st.attempts = infraredis.NewAttemptLog(redisClient, redisTTL)
	default:
		store := memory.NewParticipantStore()
		if fx != nil {
			if err := fx.SeedParticipants(ctx, store); err != nil {
				st.close()
				return nil, err
			}
		}
		st.participants = store
		st.attempts = memory.NewAttemptLog()
	}

	if redisClient != nil {
		st.catalogs = infraredis.NewCatalogRepository(redisClient, loader, catalogTTL)
		st.feed = infraredis.NewChangeFeed(redisClient, cfg.Redis.Channel)
		st.presence = infraredis.NewPresenceStore(redisClient, redisTTL)
	} else {
		st.catalogs = memory.NewCatalogRepository(loader, catalogTTL)
		st.feed = memory.NewChangeFeed()
		st.presence = memory.NewPresenceStore()
	}
	return st, nil
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func engineConfig(c config.CompetitionConfig) engine.Config {
	def := engine.DefaultConfig()
	cfg := engine.Config{
		Cooldown:      config.TTLDuration(c.Cooldown, def.Cooldown),
		CommitTimeout: config.TTLDuration(c.CommitTimeout, def.CommitTimeout),
		Lookback:      config.Seconds(c.Lookback, def.Lookback),
		Lookahead:     config.Seconds(c.Lookahead, def.Lookahead),
		StreamRetries: def.StreamRetries,
		RetryInterval: config.TTLDuration(c.RetryInterval, def.RetryInterval),
	}
	if c.StreamRetries > 0 {
		cfg.StreamRetries = c.StreamRetries
	}
	return cfg
}
