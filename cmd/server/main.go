package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dragonvein/dragonvein-server-go/internal/config"
	"github.com/dragonvein/dragonvein-server-go/internal/memstore"
	"github.com/dragonvein/dragonvein-server-go/internal/repository"
	"github.com/dragonvein/dragonvein-server-go/internal/reward"
	"github.com/dragonvein/dragonvein-server-go/internal/server"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting DragonVein server",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("store", cfg.Store.Driver),
	)

	if cfg.Auth.AdminPasswordHash == "" {
		logger.Warn("admin password hash not configured; admin routes disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	manifest, err := reward.LoadManifest(cfg.Event.SupplyManifest)
	if err != nil {
		logger.Fatal("failed to load supply manifest",
			zap.String("path", cfg.Event.SupplyManifest),
			zap.Error(err),
		)
	}

	// Initialize store
	var (
		store  reward.Store
		pinger server.Pinger
	)
	switch cfg.Store.Driver {
	case "memory":
		store = memstore.New(logger)
		logger.Warn("using in-memory store; state is lost on restart")
	default:
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}

		stats := db.Stat()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
		store = repository.NewStore(db, cfg.Database, logger)
		pinger = db
	}

	svc := reward.NewService(store, reward.Options{
		Sites:         manifest.Sites,
		FragmentBatch: cfg.Event.FragmentBatch,
		BindAttempts:  cfg.Event.BindAttempts,
	}, logger)

	// An empty pool is seeded from the manifest; a populated one is left alone.
	if err := svc.Seed(ctx, manifest, false); err != nil && !errors.Is(err, reward.ErrAlreadySeeded) {
		logger.Fatal("failed to seed reward pool", zap.Error(err))
	}

	// Live feed
	hub := server.NewHub(cfg.Server.WebSocket, cfg.Server.HTTP.AllowedOrigins, logger)
	go hub.Run(ctx)
	svc.SetNotifier(hub)

	// HTTP API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := server.NewAPI(svc, hub, cfg.Auth, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.HTTP.Address,
		Handler:      api.Router(cfg.Server.HTTP),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.HTTP.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(serveErr))
			cancel()
		}
	}()

	// gRPC health endpoint
	var stopGRPC func()
	if cfg.Server.GRPC.Address != "" {
		grpcServer, hs := server.NewGRPCServer(cfg.Server.GRPC, logger)
		lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
		if err != nil {
			logger.Fatal("failed to listen", zap.Error(err))
		}

		go server.WatchHealth(ctx, hs, pinger, cfg.Server.GRPC.HealthInterval, logger)
		go func() {
			logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
			if serveErr := grpcServer.Serve(lis); serveErr != nil {
				logger.Error("gRPC server error", zap.Error(serveErr))
			}
		}()
		stopGRPC = grpcServer.GracefulStop
	}

	logger.Info("DragonVein server initialized",
		zap.String("version", version),
		zap.String("http_address", cfg.Server.HTTP.Address),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.Int("sites", len(manifest.Sites)),
	)

	// Wait for termination signal
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Warn("server stopped unexpectedly")
	}

	logger.Info("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	cancel()

	if stopGRPC != nil {
		stopGRPC()
	}

	logger.Info("DragonVein server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
