package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/golend/internal/adapter/http"
	"github.com/iho/golend/internal/adapter/http/handler"
	"github.com/iho/golend/internal/adapter/http/middleware"
	memoryRepo "github.com/iho/golend/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/golend/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/golend/internal/adapter/repository/redis"
	"github.com/iho/golend/internal/infrastructure/auth"
	"github.com/iho/golend/internal/infrastructure/config"
	"github.com/iho/golend/internal/infrastructure/eventpublisher"
	"github.com/iho/golend/internal/infrastructure/logger"
	"github.com/iho/golend/internal/infrastructure/metrics"
	"github.com/iho/golend/internal/infrastructure/postgres"
	"github.com/iho/golend/internal/infrastructure/redis"
	"github.com/iho/golend/internal/usecase"
)

const limiterCleanupInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}

// storage is the repository set behind the use cases.
type storage struct {
	txManager usecase.TransactionManager
	loans     usecase.LoanRepository
	pools     usecase.PoolRepository
	accounts  usecase.AccountRepository
	transfers usecase.TransferRepository
	entries   usecase.EntryRepository
	outbox    usecase.OutboxRepository
	ledger    usecase.LedgerRepository

	pg *pgxpool.Pool
}

func (s *storage) Close() {
	if s.pg != nil {
		s.pg.Close()
	}
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.StorageDriver == config.StorageMemory {
		store := memoryRepo.NewStore()
		log.Warn().Msg("using in-memory storage, state is lost on restart")
		return &storage{
			txManager: memoryRepo.NewTxManager(store),
			loans:     memoryRepo.NewLoanRepository(store),
			pools:     memoryRepo.NewPoolRepository(store),
			accounts:  memoryRepo.NewAccountRepository(store),
			transfers: memoryRepo.NewTransferRepository(store),
			entries:   memoryRepo.NewEntryRepository(store),
			outbox:    memoryRepo.NewOutboxRepository(store),
			ledger:    memoryRepo.NewLedgerRepository(store),
		}, nil
	}

	if cfg.RunMigrations {
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.DatabaseTimeout)
	defer cancel()

	pool, err := postgres.NewPool(connectCtx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	log.Info().Msg("connected to postgres")

	return &storage{
		txManager: postgresRepo.NewTxManager(pool),
		loans:     postgresRepo.NewLoanRepository(pool),
		pools:     postgresRepo.NewPoolRepository(pool),
		accounts:  postgresRepo.NewAccountRepository(pool),
		transfers: postgresRepo.NewTransferRepository(pool),
		entries:   postgresRepo.NewEntryRepository(pool),
		outbox:    postgresRepo.NewOutboxRepository(pool),
		ledger:    postgresRepo.NewLedgerRepository(pool),
		pg:        pool,
	}, nil
}

// app is everything run needs to serve requests.
type app struct {
	handler   http.Handler
	publisher *eventpublisher.EventPublisher
	limiter   *middleware.RateLimiter
	metrics   *metrics.Metrics
}

func buildApp(cfg *config.Config, store *storage, rdb goredis.UniversalClient, log zerolog.Logger) *app {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if store.pg != nil {
		pg := store.pg
		m.TrackDBConnections(func() float64 { return float64(pg.Stat().AcquiredConns()) })
	}

	ids := postgresRepo.NewULIDGenerator()
	retrier := postgresRepo.NewRetrier(log)
	checks := map[string]handler.Check{}

	var (
		cache       usecase.Cache
		idempotency usecase.IdempotencyStore
		publisher   eventpublisher.Publisher = eventpublisher.NewLogPublisher(log)
	)
	if rdb != nil {
		cache = redisRepo.NewCache(rdb)
		idempotency = redisRepo.NewIdempotencyStore(rdb)
		publisher = eventpublisher.NewRedisStreamPublisher(rdb, cfg.OutboxStream, cfg.OutboxStreamMaxLen)
		checks["redis"] = func(ctx context.Context) error {
			return redis.Ping(ctx, rdb, 0)
		}
	}
	if store.pg != nil {
		pg := store.pg
		checks["postgres"] = pg.Ping
	}

	registryUC := usecase.NewRegistryUseCase(store.txManager, store.loans, store.pools, store.outbox,
		ids, cache, cfg.LoanCacheTTL, m, cfg.Registry(), log)
	poolUC := usecase.NewPoolUseCase(store.txManager, store.pools, store.accounts, store.transfers,
		store.entries, store.outbox, ids, retrier, m, log)
	transferUC := usecase.NewTransferUseCase(store.txManager, store.accounts, store.transfers,
		store.entries, store.outbox, ids, retrier, m, log)

	var authn middleware.Authenticator
	if cfg.AuthEnabled {
		authn = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	} else {
		log.Warn().Msg("authentication disabled, callers are taken from " + middleware.AccountIDHeader)
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
	}

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		LoanHandler: handler.NewLoanHandler(registryUC),
		PoolHandler: handler.NewPoolHandler(poolUC),
		AssetHandler: handler.NewAssetHandler(
			transferUC,
			usecase.NewAccountUseCase(store.accounts),
			usecase.NewEntryUseCase(store.accounts, store.entries),
		),
		LedgerHandler: handler.NewLedgerHandler(
			usecase.NewLedgerUseCase(store.ledger),
			usecase.NewReconciliationUseCase(store.loans, store.pools, store.accounts, store.ledger),
		),
		HealthHandler:    handler.NewHealthHandler(checks),
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Authenticator:    authn,
		IdempotencyStore: idempotency,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      limiter,
		Observer:         m,
		Logger:           log,
	})

	return &app{
		handler: router,
		publisher: eventpublisher.NewEventPublisher(eventpublisher.Config{
			OutboxRepo: store.outbox,
			Publisher:  publisher,
			Observer:   m,
			Logger:     log,
			BatchSize:  cfg.OutboxBatchSize,
			Interval:   cfg.OutboxPollInterval,
			Retention:  cfg.OutboxRetention,
		}),
		limiter: limiter,
		metrics: m,
	}
}

func newHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb, err = redis.NewClient(ctx, cfg.RedisURL, 0)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()
		log.Info().Msg("connected to redis")
	} else {
		log.Warn().Msg("redis disabled, idempotency keys and loan cache are off")
	}

	var client goredis.UniversalClient
	if rdb != nil {
		client = rdb
	}
	a := buildApp(cfg, store, client, log)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	go func() {
		if err := a.publisher.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event publisher stopped")
		}
	}()

	if a.limiter != nil {
		go func() {
			ticker := time.NewTicker(limiterCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-workerCtx.Done():
					return
				case <-ticker.C:
					if n := a.limiter.CleanupLimiters(3 * limiterCleanupInterval); n > 0 {
						log.Debug().Int("removed", n).Msg("pruned idle rate limiters")
					}
				}
			}
		}()
	}

	server := newHTTPServer(cfg, a.handler)
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.HTTPPort).
			Str("storage", cfg.StorageDriver).
			Str("registry", cfg.Registry().Hex()).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	return nil
}
