package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/saransh1220/blueprint-notify/db"
	"github.com/saransh1220/blueprint-notify/internal/gateway"
	"github.com/saransh1220/blueprint-notify/internal/gateway/middleware"
	"github.com/saransh1220/blueprint-notify/internal/modules/notification"
	"github.com/saransh1220/blueprint-notify/internal/shared/infrastructure/config"
	"github.com/saransh1220/blueprint-notify/internal/shared/infrastructure/database"
	"github.com/saransh1220/blueprint-notify/internal/shared/infrastructure/logging"
	"github.com/saransh1220/blueprint-notify/internal/shared/infrastructure/supervisor"
	"github.com/saransh1220/blueprint-notify/pkg/migration"
)

const serviceName = "blueprint-notify"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{
		Service: serviceName,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})

	app, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	tree := supervisor.New(serviceName, logger, supervisor.Config{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	for _, svc := range app.module.BackgroundServices() {
		tree.AddBackground(svc)
	}
	tree.AddAPI(app.server)

	logger.Info().
		Str("store", cfg.Store.Driver).
		Str("audit", cfg.Audit.Sink).
		Str("port", cfg.Server.Port).
		Msg("starting")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor stopped: %w", err)
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logger.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}
	logger.Info().Msg("stopped")
	return nil
}

type app struct {
	module  *notification.Module
	handler http.Handler
	server  *gateway.Server
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// build connects the configured backends and wires the module, routes and server.
func build(cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}
	deps := notification.Deps{Logger: logger}
	checks := map[string]gateway.HealthCheck{}

	if cfg.Store.Driver == config.StorePostgres {
		conn, err := openPostgres(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		deps.DB = conn
		checks["postgres"] = conn.PingContext
	}

	if cfg.Audit.Sink == config.AuditRedis {
		client, err := database.NewRedis(cfg.Redis)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		deps.Redis = client
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	module, err := notification.NewModule(cfg, deps)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("building notification module: %w", err)
	}
	a.module = module

	a.handler = gateway.SetupRoutes(gateway.RouterConfig{
		Logger:              logging.Component(logger, "http"),
		AllowedOrigins:      cfg.Server.Origins(),
		AuthMiddleware:      middleware.NewAuthMiddleware(cfg.JWT.Secret),
		NotificationHandler: module.HTTPHandler(),
		HealthChecks:        checks,
	})
	a.server = gateway.NewServer(gateway.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, a.handler, logging.Component(logger, "http"))
	return a, nil
}

func openPostgres(cfg database.PostgresConfig, logger zerolog.Logger) (*sqlx.DB, error) {
	conn, err := database.NewPostgresDB(cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.AutoMigrate {
		return conn, nil
	}

	mcfg := migration.Config{
		DatabaseURL:    cfg.URL(),
		MigrationsPath: cfg.MigrationsPath,
		Logger:         &logger,
	}
	if mcfg.MigrationsPath == "" {
		mcfg.Source = db.Migrations
		mcfg.MigrationsPath = db.MigrationsDir
	}
	if err := migration.AutoMigrate(mcfg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return conn, nil
}
