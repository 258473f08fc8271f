package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trivia-stats-service/internal/app"
	"trivia-stats-service/internal/config"
	redisstore "trivia-stats-service/internal/infra/redis"
)

// NewRefreshCmd runs one cache refresh pass. Meant for external schedulers
// (cron/cloud scheduler) that prefer a one-shot process over the in-server
// ticker; both run the same windowed pass.
func NewRefreshCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one stats cache refresh pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd.Context(), *configPath)
		},
	}
}

func runRefresh(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	counters := redisstore.NewCounterStore(client)
	cache := redisstore.NewStatsCache(client, config.Duration(cfg.Stats.CacheTTL, 6*time.Hour))
	stats := app.NewStatsService(cache, counters, config.Duration(cfg.Stats.FallbackTimeout, 2*time.Second))
	return stats.Refresh(ctx)
}
