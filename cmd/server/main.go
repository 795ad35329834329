// Command tasksync-server starts the offline-sync task backend.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/edrozo/tasksync/internal/config"
	"github.com/edrozo/tasksync/internal/limiter"
	"github.com/edrozo/tasksync/internal/metrics"
	"github.com/edrozo/tasksync/internal/migrate"
	"github.com/edrozo/tasksync/internal/repository"
	"github.com/edrozo/tasksync/internal/repository/memory"
	"github.com/edrozo/tasksync/internal/repository/postgres"
	httpserver "github.com/edrozo/tasksync/internal/server/http"
	"github.com/edrozo/tasksync/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, and starts the HTTP server.
func main() {
	cfg := config.Load()

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dsn := flag.String("dsn", cfg.DatabaseURL, "PostgreSQL DSN (required)")
	jwtKey := flag.String("jwt-key", cfg.JWTKey, "HS256 signing key (required)")
	accessTTL := flag.Duration("access-ttl", cfg.AccessTTL, "access token TTL")
	maxBatch := flag.Int("max-batch", cfg.MaxBatch, "max operations per sync submission")
	devMemory := flag.Bool("dev-memory", cfg.DevMemory, "run on in-memory stores (development only)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", *addr),
	)

	if *jwtKey == "" {
		logger.Fatal("missing jwt signing key (--jwt-key or JWT_KEY)")
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		taskRepo   repository.TaskRepository
		ledgerRepo repository.LedgerRepository
		userRepo   repository.UserRepository
		lim        limiter.Limiter
	)

	if *devMemory {
		logger.Warn("running on in-memory stores; data will not survive a restart")
		taskRepo = memory.NewTaskStore()
		ledgerRepo = memory.NewLedgerStore()
		userRepo = memory.NewUserStore()
		lim = limiter.Unlimited{}
	} else {
		if *dsn == "" {
			logger.Fatal("missing database DSN (--dsn or DATABASE_URL)")
		}
		if err := migrate.Up(ctx, *dsn); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}

		pool, err := pgxpool.New(ctx, *dsn)
		if err != nil {
			logger.Fatal("pgxpool.New", zap.Error(err))
		}
		defer pool.Close()
		// Refuse to start without a reachable durable store.
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}

		db := &postgres.DB{Pool: pool}
		taskRepo = postgres.NewTaskRepo(db)
		ledgerRepo = postgres.NewLedgerRepo(db)
		userRepo = postgres.NewUserRepo(db)
		lim = limiter.NewPG(pool, 15*time.Minute, 5, 15*time.Minute)
	}

	metrics.Register()

	authSvc := service.NewAuthService(userRepo, []byte(*jwtKey), *accessTTL, lim)
	taskSvc := service.NewTaskService(taskRepo)
	syncSvc := service.NewReconciler(ledgerRepo, taskSvc, *maxBatch, logger)

	srv := httpserver.New(authSvc, taskSvc, syncSvc, []byte(*jwtKey), logger)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", *addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
