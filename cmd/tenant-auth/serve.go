package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
	"github.com/goliatone/go-tenant-auth/cache"
	"github.com/goliatone/go-tenant-auth/repository"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts the web server",
	Long:  `Launch the auth service, configuration is read from TENANT_AUTH_* environment variables`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func openCacheStore(cfg *auth.Config, logger auth.Logger) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "redis":
		client := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return cache.NewRedisStore(client, "tenant-auth:"), nil
	default:
		return cache.OpenBolt(cache.BoltOptions{Dir: cfg.CacheDir, Logger: logger})
	}
}

func serve() error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := auth.NewMetrics(registry)

	db, err := repository.Open(cfg.DBDriver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	if err := repository.Migrate(startCtx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate: %w", err)
	}

	repo := repository.NewManager(db)
	repo.MustValidate()

	store, err := openCacheStore(cfg, logger.Named("cache"))
	if err != nil {
		_ = repo.Close()
		return fmt.Errorf("failed to open cache: %w", err)
	}

	if err := store.Ping(startCtx); err != nil {
		_ = store.Close()
		_ = repo.Close()
		return fmt.Errorf("cache unreachable: %w", err)
	}

	observe := cache.WithObserver(metrics.ObserveCache)

	resolver := auth.NewResolver(repo.Users(), repo.Memberships(), repo.Tenants()).
		WithLogger(logger.Named("resolver")).
		WithIdentityTx(repo.IdentityTx).
		WithLookupCache(store, cfg.LookupCacheTTL, observe)

	invites := auth.NewInvitationGate(store, cfg.InvitationTTL, logger.Named("invitations"), observe)
	tokens := auth.NewTokenService(cfg, logger.Named("tokens"))
	sessions := auth.NewSessions(repo.Sessions(), logger.Named("sessions"))

	sink := auth.MultiSink(
		auth.StoreSink(repo.Activity()),
		activitymap.LogSink(logger.Named("audit")),
	)
	activity := auth.NewActivityDispatcher(sink, cfg.ActivityQueueSize, logger.Named("activity")).
		OnDrop(metrics.ObserveActivityDrop)
	activity.Start()

	svc := auth.NewService(cfg, resolver, sessions, tokens, invites).
		WithLogger(logger.Named("service")).
		WithCryptoPool(auth.NewCryptoPool(cfg.CryptoWorkers).WithObserver(metrics.ObserveCrypto)).
		WithActivity(activity).
		WithMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "tenant-auth",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           60 * time.Second,
	})

	ctrl := auth.NewAuthController(cfg, svc, resolver, tokens, auth.WithControllerLogger(logger.Named("http")))
	auth.RegisterAuthRoutes(app, ctrl)
	app.Get("/metrics", auth.MetricsHandler(registry))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := repo.Ping(c.UserContext()); err != nil {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	lc := auth.NewLifecycle(cfg.ShutdownGrace, logger.Named("lifecycle"))

	lc.OnShutdown("http", app.ShutdownWithContext)
	lc.OnShutdown("activity", activity.Stop)
	lc.OnShutdown("cache", func(context.Context) error {
		if err := store.Flush(); err != nil {
			_ = store.Close()
			return err
		}
		return store.Close()
	})
	lc.OnShutdown("database", func(context.Context) error {
		return repo.Close()
	})

	lc.StartProbe("database", cfg.HealthInterval, repo.Ping)
	lc.StartProbe("cache", cfg.HealthInterval, store.Ping)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	lc.Watch(sigCtx)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			serverErr <- err
			lc.Trigger(fmt.Sprintf("http server: %v", err))
		}
	}()

	<-lc.Done()
	logger.Info("shutting down", "reason", lc.Reason())

	err = lc.Shutdown()

	select {
	case lerr := <-serverErr:
		return fmt.Errorf("server error: %w", lerr)
	default:
	}

	return err
}
