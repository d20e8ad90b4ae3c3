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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/application"
	checkoutfb "github.com/dmehra2102/Marketplace-Checkout/internal/checkout/infrastructure/firebase"
	checkouthttp "github.com/dmehra2102/Marketplace-Checkout/internal/checkout/infrastructure/http"
	checkoutkafka "github.com/dmehra2102/Marketplace-Checkout/internal/checkout/infrastructure/kafka"
	checkoutpg "github.com/dmehra2102/Marketplace-Checkout/internal/checkout/infrastructure/postgres"
	checkoutstripe "github.com/dmehra2102/Marketplace-Checkout/internal/checkout/infrastructure/stripe"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/config"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/idempotency"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/logging"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/metrics"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/outbox"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/shutdown"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/tracing"
)

func main() {
	app := &cli.App{
		Name:  "checkout-service",
		Usage: "marketplace checkout API, outbox relay and coupon sweeper",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and background workers",
				Action: func(c *cli.Context) error {
					return serve(c.Context)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Action: func(c *cli.Context) error {
					cfg, err := config.LoadCheckout()
					if err != nil {
						return err
					}
					log := logging.New(cfg.LogLevel)
					if err := checkoutpg.Migrate(cfg.PGURL); err != nil {
						return err
					}
					log.Info("migrations applied")
					return nil
				},
			},
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("checkout-service failed", "err", err)
		os.Exit(1)
	}
}

func serve(parent context.Context) error {
	cfg, err := config.LoadCheckout()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(parent)
	defer cancel()

	tp, err := tracing.Init(ctx, "checkout-service", cfg.OTLPURL, log)
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

	writer := checkoutkafka.NewWriter([]string{cfg.KafkaAddr})
	defer writer.Close()

	authClient, err := checkoutfb.NewAuthClient(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	if err != nil {
		return err
	}

	fee, err := cfg.Fee()
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg, "checkout")

	repo := checkoutpg.NewRepository(log, pool)
	gateway := checkoutstripe.NewGateway(log, checkoutstripe.Config{
		SecretKey:  cfg.StripeSecretKey,
		Timeout:    cfg.GatewayTimeout,
		MaxRetries: 1,
	})
	svc := application.NewService(log, repo, repo, repo, gateway,
		application.Options{
			ShippingFee:    fee,
			ElevatedPlan:   cfg.ElevatedPlan,
			Currency:       cfg.Currency,
			AppID:          cfg.AppID,
			PublicBaseURL:  cfg.PublicBaseURL,
			GatewayTimeout: cfg.GatewayTimeout,
			SessionTTL:     cfg.GatewaySessionTTL,
			AdminEmails:    cfg.Admins(),
		},
		application.WithIdempotency(idempotency.NewStore(rdb, cfg.IdempotencyTTL)),
		application.WithMetrics(m),
	)

	handler := checkouthttp.NewHandler(log, svc,
		checkoutfb.NewIdentityProvider(authClient),
		checkoutstripe.NewWebhookVerifier(cfg.StripeWebhookSecret),
		checkoutkafka.NewConfirmationPublisher(log, writer, cfg.ConfirmTopic),
	)

	store := checkoutpg.NewOutboxStore(log, pool)
	relay := outbox.NewRelay(log, store, outbox.NewDispatcher(log, writer, cfg.OutboxTopic), "checkout-service-relay")
	sweeper := application.NewCouponSweeper(log, svc, cfg.CouponSweepInterval)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.HandlerFor(reg))
	r.Mount("/", handler.Routes())

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(r, "checkout-http"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.GatewayTimeout + 5*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("checkout-service shutdown complete")
	return err
}
