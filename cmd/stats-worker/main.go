package main

import (
	"context"
	"log"
	"time"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/config"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/store/postgres"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/tasks"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/telemetry"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required for the stats worker")
	}

	shutdownTelemetry := telemetry.Setup(telemetry.Options{
		ServiceName: "stats-worker",
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("redis ping %s: %v", cfg.RedisAddr, err)
	}
	cancel()
	_ = rdb.Close()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{
		DefaultBranchID: cfg.DefaultBranchID,
	})
	handlers := tasks.NewHandlers(st)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: cfg.StatsWorkerCount,
			Queues: map[string]int{
				tasks.QueueStats: 6,
				"default":        3,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeDailyStat, handlers.HandleDailyStat)
	mux.HandleFunc(tasks.TypeWaitSample, handlers.HandleWaitSample)

	log.Printf("stats-worker consuming redis addr=%s", cfg.RedisAddr)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("worker error: %v", err)
	}
}
