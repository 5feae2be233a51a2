// Command chitchat-server runs the encrypted chat server.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/and161185/chitchat/internal/config"
	"github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/limiter"
	"github.com/and161185/chitchat/internal/migrate"
	"github.com/and161185/chitchat/internal/repository"
	"github.com/and161185/chitchat/internal/repository/memstore"
	"github.com/and161185/chitchat/internal/repository/postgres"
	"github.com/and161185/chitchat/internal/server"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, prepares the store, and serves until a signal or a fatal
// supervisor event.
func main() {
	cfgPath := flag.String("config", "", "YAML config file (optional)")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	logger, _ := zap.NewProduction()
	if *dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.ListenAddr),
		zap.String("store", cfg.Store.Backend),
	)

	own, err := crypto.LoadOrCreateIdentity(cfg.Server.KeyFile)
	if err != nil {
		logger.Fatal("server identity", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// srv is assigned before any store call can run.
	var srv *server.Server
	var exec repository.Executor
	var bl limiter.Blacklist

	switch cfg.Store.Backend {
	case config.StoreMemory:
		logger.Warn("memory store: nothing survives a restart")
		exec = memstore.New()
		bl = limiter.NewMemory(nil)
	default:
		if err := migrate.Up(ctx, cfg.Store.DSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, cfg.Store.DSN, cfg.Store.MaxConns)
		if err != nil {
			logger.Fatal("postgres", zap.Error(err))
		}
		defer db.Close()

		exec = postgres.NewExecutor(db, logger.Named("store"),
			postgres.WithRetry(cfg.Store.Attempts, cfg.Store.RetryDelay),
			postgres.WithUnavailableHook(func(err error) { srv.StoreUnavailable(err) }),
		)
		pg := limiter.NewPG(db.Pool, nil)
		go purgeBlacklist(ctx, pg, logger)
		bl = pg
	}

	srv = server.New(cfg, own, exec, bl, logger)

	lis, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	if err := srv.Run(ctx, lis); err != nil {
		logger.Error("server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// purgeBlacklist drops expired entries every few minutes.
func purgeBlacklist(ctx context.Context, pg *limiter.PG, log *zap.Logger) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := pg.Purge(ctx); err != nil {
				log.Warn("purge blacklist", zap.Error(err))
			}
		}
	}
}
