package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/application"
	settlementkafka "github.com/dmehra2102/Marketplace-Checkout/internal/settlement/infrastructure/kafka"
	settlementpg "github.com/dmehra2102/Marketplace-Checkout/internal/settlement/infrastructure/postgres"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/config"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/idempotency"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/logging"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/metrics"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/shutdown"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/tracing"
)

func main() {
	app := &cli.App{
		Name:  "settlement-service",
		Usage: "applies payment gateway confirmations to marketplace orders",
		Action: func(c *cli.Context) error {
			return run(c.Context)
		},
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("settlement-service failed", "err", err)
		os.Exit(1)
	}
}

func run(parent context.Context) error {
	cfg, err := config.LoadSettlement()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(parent)
	defer cancel()

	tp, err := tracing.Init(ctx, "settlement-service", cfg.OTLPURL, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		return fmt.Errorf("pg connect: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	reg := metrics.NewRegistry()
	m := metrics.New(reg, "settlement")

	reconciler := application.NewReconciler(log, settlementpg.NewRepository(log, pool), cfg.AppID, m)
	reader := settlementkafka.NewReader([]string{cfg.KafkaAddr}, cfg.ConfirmTopic, cfg.GroupID)
	consumer := settlementkafka.NewConsumer(log, reader, reconciler, idempotency.NewStore(rdb, cfg.DedupeTTL))

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.HandlerFor(reg))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: r, ReadTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("consuming gateway events", "topic", cfg.ConfirmTopic, "group", cfg.GroupID)
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("settlement-service shutdown complete")
	return err
}
