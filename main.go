package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/audit"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/auth"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/config"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/export"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/gateway"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/handlers"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/health"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/metrics"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/pubsub"
)

func main() {
	app := &cli.App{
		Name:  "ranking-ui",
		Usage: "leaderboard and admin console for the ranking service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the YAML configuration file", EnvVars: []string{"CONFIG_FILE"}},
		},
		Commands: []*cli.Command{
			serveCommand(),
			seedCommand(),
			exportCommand(),
			auditCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(cfg.LogLevel)
	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the web UI",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Info("Starting ranking UI", "environment", cfg.Environment, "ranking", cfg.Ranking.BaseURL)

	m := metrics.New()
	gw := gateway.New(cfg.Ranking.BaseURL, cfg.Ranking.Timeout, gateway.WithMetrics(m))
	monitor := health.NewMonitor(0)
	monitor.Add(health.ServiceRanking, gw.Ping)

	// Operator sessions
	var store auth.Store
	switch cfg.Session.Store {
	case "redis":
		rs := auth.NewRedisStore(net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port), cfg.Redis.Password)
		defer rs.Close()
		monitor.Add(health.ServiceSessions, rs.Ping)
		store = rs
		logger.Info("Using Redis session store", "host", cfg.Redis.Host)
	default:
		ms := auth.NewMemoryStore()
		go ms.Cleanup(ctx, time.Minute)
		store = ms
		logger.Info("Using in-memory session store")
	}
	secret := cfg.Session.Secret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	}
	sessions := auth.NewManager(store, auth.NewSigner(secret), cfg.Session.TTL, !cfg.IsDevelopment())

	// Audit trail
	trail, err := openAuditStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer trail.Close()
	monitor.Add(health.ServiceAudit, func(ctx context.Context) error {
		_, err := trail.Recent(ctx, 1)
		return err
	})

	// Event bus: embedded NATS in development, real NATS JetStream otherwise
	var nats *pubsub.NATSPubSub
	if cfg.IsDevelopment() {
		opts := pubsub.DefaultEmbeddedNATSOptions()
		opts.Subject = cfg.NATS.Subject
		nats, err = pubsub.NewEmbeddedNATSPubSub(opts)
		if err != nil {
			return fmt.Errorf("failed to start embedded NATS: %w", err)
		}
		logger.Info("Embedded NATS server ready", "url", nats.ServerURL())
	} else {
		nats, err = pubsub.NewNATSPubSub(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	}
	defer nats.Close()
	monitor.Add(health.ServiceEvents, func(context.Context) error { return nats.Ping() })
	bus := pubsub.NewWithUpstream(nats)

	if cfg.ClickHouse.Addr != "" {
		sink, err := audit.NewClickHouseSink(ctx, cfg.ClickHouse.Addr, cfg.ClickHouse.Database, cfg.ClickHouse.Username, cfg.ClickHouse.Password)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer sink.Close()
		go audit.NewExporter(trail, sink, cfg.ClickHouse.Interval, m).Run(ctx)
	} else {
		logger.Info("Skipping audit export (ClickHouse not configured)")
	}

	// Optional OIDC gate in front of /admin
	var gate auth.AuthProvider
	switch {
	case cfg.Authentik.BaseURL != "":
		gate = auth.NewAuthentikAuth(&auth.AuthentikConfig{
			BaseURL:      cfg.Authentik.BaseURL,
			ClientID:     cfg.Authentik.ClientID,
			ClientSecret: cfg.Authentik.ClientSecret,
			RedirectURL:  cfg.Authentik.RedirectURL,
		}, sessions)
		logger.Info("Admin panel behind Authentik", "url", cfg.Authentik.BaseURL)
	case cfg.IsDevelopment():
		gate = auth.NewMockAuth(sessions)
		logger.Info("Using mock authentication for local development")
	}

	var uploader *export.Uploader
	if cfg.S3.Bucket != "" {
		uploader, err = export.NewUploader(cfg.S3)
		if err != nil {
			return err
		}
	}

	srv, err := handlers.New(handlers.Deps{
		Config:   cfg,
		Gateway:  gw,
		Sessions: sessions,
		Auth:     gate,
		Bus:      bus,
		Audit:    audit.NewRecorder(trail, bus),
		Metrics:  m,
		Health:   monitor,
		Uploader: uploader,
	})
	if err != nil {
		return err
	}

	go monitor.Run(ctx)
	go srv.WatchEvents(ctx)

	lis, err := net.Listen("tcp", "0.0.0.0:"+cfg.HTTP.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC health: %w", err)
	}
	go func() {
		logger.Info("gRPC health server starting", "address", lis.Addr().String())
		if err := health.Serve(ctx, lis, monitor); err != nil {
			logger.Error("gRPC health server failed", "error", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTP.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func openAuditStore(ctx context.Context, cfg *config.Config) (audit.Store, error) {
	switch cfg.Audit.Driver {
	case "sqlite":
		s, err := audit.NewSQLiteStore(cfg.Audit.SQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		logger.Info("Audit trail in SQLite", "file", cfg.Audit.SQLiteFile)
		return s, nil
	case "postgres":
		s, err := audit.NewPostgresStore(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		logger.Info("Audit trail in Postgres")
		return s, nil
	default:
		logger.Info("Audit trail in memory")
		return audit.NewMemoryStore(0), nil
	}
}
