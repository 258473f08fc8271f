package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trivia-stats-service/internal/app"
	"trivia-stats-service/internal/config"
	"trivia-stats-service/internal/infra/memory"
	pgstore "trivia-stats-service/internal/infra/postgres"
	redisstore "trivia-stats-service/internal/infra/redis"
	transport "trivia-stats-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the stats server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var counters app.CounterStore
	var cache app.StatsCache
	if redisClient != nil {
		counters = redisstore.NewCounterStore(redisClient)
		cache = redisstore.NewStatsCache(redisClient, config.Duration(cfg.Stats.CacheTTL, 6*time.Hour))
	} else {
		counters = memory.NewCounterStore()
		cache = memory.NewStatsCache()
	}

	var profiles app.ProfileStore
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		profiles = pgstore.NewProfileStore(pool)
	} else {
		profiles = memory.NewProfileStore()
	}

	fallbackTimeout := config.Duration(cfg.Stats.FallbackTimeout, 2*time.Second)
	refreshInterval := config.Duration(cfg.Stats.RefreshInterval, time.Hour)

	tally := app.NewTallyWriter(counters)
	stats := app.NewStatsService(cache, counters, fallbackTimeout)
	orch := app.NewOrchestrator(profiles, app.DefaultRetryPolicy())

	statsHandler := transport.NewStatsHandler(stats)
	refreshHandler := transport.NewRefreshHandler(stats, cfg.Stats.RefreshSecret)
	wsHandler := transport.NewWSHandler(tally, stats, orch)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats", statsHandler.ServeStats)
	mux.HandleFunc("/internal/refresh", refreshHandler.ServeRefresh)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go func() {
		// Warm the cache once at boot, then hold the cadence.
		_ = stats.Refresh(refreshCtx)
		stats.RunRefreshLoop(refreshCtx, refreshInterval)
	}()

	go func() {
		log.Printf("starting trivia stats service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	stopRefresh()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)

	// Let in-flight tallies and profile syncs settle before exit.
	tally.Drain()
	orch.Drain()
	return err
}
