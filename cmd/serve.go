package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/arena"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/config"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/db"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/handlers"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/metrics"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/repositories"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/routes"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/services"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/storage"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var restore []int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the organizer API, WebSocket feed and arena link",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), restore)
		},
	}
	cmd.Flags().IntSliceVar(&restore, "restore", nil, "tournament ids whose schedule queue is rebuilt at startup")
	return cmd
}

func serve(parent context.Context, restore []int) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded", "port", cfg.ServerPort, "rotation", rules.Rotation, "swiss_rounds", rules.SwissRounds)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := events.NewHub(logger)
	go hub.Run(ctx)
	bus := events.NewBus(logger, hub)

	if cfg.Influx.Enabled() {
		sink, err := metrics.Connect(ctx, metrics.Config{
			URL: cfg.Influx.URL, Token: cfg.Influx.Token, Org: cfg.Influx.Org, Bucket: cfg.Influx.Bucket,
		}, logger)
		if err != nil {
			logger.Warn("influxdb unavailable, metrics disabled", "error", err)
		} else {
			defer sink.Close()
			bus.Subscribe(sink)
			logger.Info("influxdb sink enabled", "bucket", cfg.Influx.Bucket)
		}
	}

	var objects storage.ObjectStore = storage.NewMemoryStore()
	if cfg.R2.Enabled() {
		objects, err = storage.NewCloudflareR2Store(ctx, storage.CloudflareR2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			BucketName:      cfg.R2.BucketName,
			PublicBaseURL:   cfg.R2.PublicBaseURL,
		}, logger)
		if err != nil {
			return err
		}
		logger.Info("Cloudflare R2 archive enabled", "bucket", cfg.R2.BucketName)
	}
	archiver := storage.NewArchiver(objects, logger)
	defer archiver.Wait()
	bus.Subscribe(archiver)

	var arenaClient arena.Client = arena.NewOfflineClient(logger)
	var mqttClient *arena.MQTTClient
	if cfg.MQTT.Enabled() {
		mqttClient, err = arena.ConnectMQTT(arena.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			return err
		}
		defer mqttClient.Close()
		arenaClient = mqttClient
	} else {
		logger.Warn("MQTT_BROKER not set, arena runs offline and results are entered by hand")
	}

	engine := services.NewEngine(services.EngineDeps{
		Store:     store,
		Rules:     rules,
		Publisher: bus,
		Arena:     arenaClient,
		Logger:    logger,
	})

	if mqttClient != nil {
		if err := mqttClient.SubscribeResults(ctx, engine.ReportArenaResult); err != nil {
			return fmt.Errorf("failed to subscribe to arena results: %w", err)
		}
	}

	for _, tid := range restore {
		n, err := engine.RestoreQueue(ctx, tid)
		if err != nil {
			return err
		}
		logger.Info("schedule queue restored", "tournament_id", tid, "matches", n)
	}

	watchdog := services.NewWatchdog(engine, rules.WatchdogInterval, rules.OverdueGrace, logger)
	if err := watchdog.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := watchdog.Stop(); err != nil {
			logger.Error("failed to stop watchdog", "error", err)
		}
	}()

	router := routes.SetupRoutes(routes.Handlers{
		Tournament: handlers.NewTournamentHandler(engine),
		Class:      handlers.NewClassHandler(engine),
		Match:      handlers.NewMatchHandler(engine),
		Queue:      handlers.NewQueueHandler(engine),
		WebSocket:  handlers.NewWebSocketHandler(hub, engine, logger),
	}, []byte(cfg.JWTSecretKey), cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", "error", closeErr)
			}
			return err
		}
		logger.Info("server shutdown complete")
	}
	return nil
}

// openStore picks Postgres when DATABASE_URL is set, else the in-memory store.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repositories.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store; state is lost on restart")
		return repositories.NewMemoryStore(), func() {}, nil
	}
	conn, err := db.Connect(ctx, cfg.DatabaseURL, db.Pool{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.MigrateUp(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	logger.Info("database connection established")
	closeFn := func() {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close database connection", "error", err)
		}
	}
	return repositories.NewPostgresStore(conn), closeFn, nil
}

