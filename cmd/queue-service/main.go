package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/config"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/httpapi"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/store/postgres"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/tasks"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/telemetry"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/waitstats"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup(telemetry.Options{
		ServiceName: "queue-service",
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{
		DefaultBranchID: cfg.DefaultBranchID,
	})

	var dispatcher tasks.Dispatcher
	if cfg.RedisAddr != "" {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer client.Close()
		dispatcher = tasks.NewAsynqDispatcher(client)
		log.Printf("stats dispatch via redis addr=%s", cfg.RedisAddr)
	} else {
		dispatcher = tasks.NewInlineDispatcher(tasks.NewHandlers(st))
		log.Printf("stats dispatch inline")
	}

	estimator := waitstats.NewEstimator(st, cfg.LiveMinSamples, cfg.DefaultAvgWaitMin)
	handler := httpapi.NewHandler(st, estimator, dispatcher)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		BranchPerMinute: cfg.BranchRateLimitPerMinute,
		BranchBurst:     cfg.BranchRateLimitBurst,
	})

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes())), "queue-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
