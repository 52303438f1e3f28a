// Brane Worker - executes workflow tasks inside containers on one node.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"github.com/brane-run/brane/internal/config"
	"github.com/brane-run/brane/internal/infra/logger"
	"github.com/brane-run/brane/internal/vm/plugin"
	"github.com/brane-run/brane/internal/worker"
	"github.com/brane-run/brane/internal/worker/container"
	"github.com/brane-run/brane/internal/workerrpc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("Starting Brane Worker", "grpc_port", cfg.Server.GRPCPort, "http_port", cfg.Server.HTTPPort)

	nodeConfigPath := os.Getenv("BRANE_WORKER_NODE_CONFIG")
	if nodeConfigPath == "" {
		nodeConfigPath = "node.yml"
	}
	nodeCfg, err := worker.LoadNodeConfig(nodeConfigPath)
	if err != nil {
		appLogger.Error("Failed to load node configuration", "error", err, "path", nodeConfigPath)
		os.Exit(1)
	}
	if err := nodeCfg.EnsureDirs(); err != nil {
		appLogger.Error("Failed to create node working directories", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Node configuration loaded", "location_id", nodeCfg.LocationID)

	checker, err := worker.LoadHashAllowList(nodeCfg.Paths.Hashes)
	if err != nil {
		appLogger.Error("Failed to load container hash policy", "error", err)
		os.Exit(1)
	}

	launcher, err := container.NewLocal()
	if err != nil {
		appLogger.Error("Failed to connect to local container runtime", "error", err)
		os.Exit(1)
	}

	backend := plugin.NewLocal()

	w := worker.New(nodeCfg, backend, checker, launcher)

	credsPath := nodeCfg.Paths.Creds
	if credsPath != "" {
		if token, claims, err := worker.LoadServiceToken(credsPath); err != nil {
			appLogger.Warn("No service credentials loaded, API calls will be unauthenticated", "error", err)
		} else {
			w.ServiceToken = token
			appLogger.Info("Service credentials loaded", "location_id", claims.LocationID, "subject", claims.Subject)
		}
	}

	w.Cache = worker.NewDigestCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, 10*time.Minute)
	if w.Cache != nil {
		defer w.Cache.Close()
		appLogger.Info("Digest cache connected", "addr", cfg.Redis.URL)
	} else {
		appLogger.Info("Digest cache disabled, no redis URL configured")
	}

	sweeper, err := worker.NewCleanupSweeper(w, cfg.Cleanup.Schedule, cfg.Cleanup.MaxAge)
	if err != nil {
		appLogger.Error("Failed to initialize cleanup sweeper", "error", err)
		os.Exit(1)
	}
	if cfg.Cleanup.Enabled {
		sweeper.Start()
		appLogger.Info("Cleanup sweeper started", "schedule", cfg.Cleanup.Schedule, "max_age", cfg.Cleanup.MaxAge)
	}

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&workerrpc.ServiceDesc, workerrpc.NewServer(w))

	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		appLogger.Error("Failed to listen for gRPC", "error", err)
		os.Exit(1)
	}

	grpcErrors := make(chan error, 1)
	go func() {
		appLogger.Info("gRPC worker server listening", "addr", grpcListener.Addr().String())
		grpcErrors <- grpcServer.Serve(grpcListener)
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "location_id": nodeCfg.LocationID})
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	httpErrors := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP health server listening", "addr", httpServer.Addr)
		httpErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-grpcErrors:
		appLogger.Error("gRPC server error", "error", err)
		os.Exit(1)
	case err := <-httpErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		appLogger.Info("Worker shutdown initiated", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if cfg.Cleanup.Enabled {
			sweeper.Stop()
		}

		grpcServer.GracefulStop()

		if err := httpServer.Shutdown(ctx); err != nil {
			appLogger.Error("HTTP server shutdown failed", "error", err)
			_ = httpServer.Close()
		}

		appLogger.Info("Worker stopped")
	}
}
