package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	wheel "github.com/Ashenafi-pixel/prize-wheel-engine"
	"github.com/Ashenafi-pixel/prize-wheel-engine/auth"
	"github.com/Ashenafi-pixel/prize-wheel-engine/config"
	"github.com/Ashenafi-pixel/prize-wheel-engine/events"
	"github.com/Ashenafi-pixel/prize-wheel-engine/ledger"
	"github.com/Ashenafi-pixel/prize-wheel-engine/logger"
	"github.com/Ashenafi-pixel/prize-wheel-engine/lottery"
	"github.com/Ashenafi-pixel/prize-wheel-engine/migrations"
	"github.com/Ashenafi-pixel/prize-wheel-engine/operator"
	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
	"github.com/Ashenafi-pixel/prize-wheel-engine/randomness"
	"github.com/Ashenafi-pixel/prize-wheel-engine/server"
	"github.com/Ashenafi-pixel/prize-wheel-engine/store"
)

func main() {
	// Load .env from the working directory or the project root.
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "prize-wheel: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config -> %w", err)
	}
	if err := logger.Init(cfg.Environment); err != nil {
		return fmt.Errorf("failed to initialize logger -> %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	funds, err := openFunds(cfg)
	if err != nil {
		return err
	}

	rng, err := randomness.NewHKDFSource([]byte(cfg.RandomnessSecret))
	if err != nil {
		return err
	}
	zap.L().Info("randomness ready", zap.String("commitment", rng.Commitment()))

	sinks := events.Multi{events.LogSink{}}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse REDIS_URL -> %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis -> %w", err)
		}
		sinks = append(sinks, events.NewRedisSink(client, cfg.RedisChannel))
	}
	var audit *events.FileSink
	if cfg.AuditEvents {
		audit = events.NewFileSink(cfg.DataDir)
		sinks = append(sinks, audit)
	}

	svc := lottery.New(st, funds, rng,
		lottery.WithSink(sinks),
		lottery.WithMinReserve(cfg.VaultMinReserve),
	)

	opts := []server.Option{server.WithRateLimit(cfg.RateLimit, cfg.RateBurst)}
	if audit != nil {
		opts = append(opts, server.WithAudit(audit))
	}
	if custody, ok := funds.(pool.CustodyBalancer); ok {
		rec := lottery.NewReconciler(st, custody)
		if err := rec.Start(cfg.ReconcileSchedule); err != nil {
			return err
		}
		defer rec.Stop()
		opts = append(opts, server.WithReconciler(rec))
	}

	srv := server.New(svc, auth.NewVerifier(cfg.JWTSecret), opts...)
	zap.L().Info("starting server", zap.Int("port", cfg.Port), zap.String("env", cfg.Environment))
	if err := srv.Run(ctx, ":"+strconv.Itoa(cfg.Port), cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("failed to run the server -> %w", err)
	}
	zap.L().Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		fs, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file store -> %w", err)
		}
		zap.L().Info("using file store", zap.String("dir", cfg.DataDir))
		return fs, func() {}, nil
	}
	db, err := wheel.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database -> %w", err)
	}
	if err := migrations.Apply(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	zap.L().Info("using postgres store")
	return store.NewPostgresStore(db), func() { _ = db.Close() }, nil
}

func openFunds(cfg *config.Config) (pool.Funds, error) {
	if cfg.OperatorEndpoint != "" {
		zap.L().Info("using operator wallet", zap.String("endpoint", cfg.OperatorEndpoint))
		return operator.NewClient(cfg.OperatorEndpoint, cfg.OperatorSecret), nil
	}
	l, err := ledger.NewFile(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger -> %w", err)
	}
	seed, err := cfg.Seed()
	if err != nil {
		return nil, err
	}
	for acct, amount := range seed {
		bal, _ := l.Balance(context.Background(), acct)
		if bal > 0 {
			continue
		}
		if err := l.Deposit(acct, amount); err != nil {
			return nil, err
		}
	}
	zap.L().Info("using in-process ledger", zap.String("dir", cfg.DataDir), zap.Int("seeded", len(seed)))
	return l, nil
}
