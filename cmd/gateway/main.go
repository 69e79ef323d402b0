package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flow402/config"
	httpHandler "flow402/internal/adapter/http/handler"
	pgStorage "flow402/internal/adapter/storage/postgres"
	redisStorage "flow402/internal/adapter/storage/redis"
	"flow402/internal/core/ports"
	"flow402/internal/service"
	"flow402/pkg/logger"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	tenantID, err := uuid.Parse(cfg.Gateway.TenantID)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway.tenant_id must be a valid UUID")
	}

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("tenant_id", tenantID.String()).
		Msg("starting flow402 gateway")

	ctx := context.Background()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metadata encryption")
	}

	tenantRepo := pgStorage.NewTenantRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	journalRepo := pgStorage.NewJournalRepo(pool, encSvc)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	verifier := service.NewHMACSignatureVerifier(cfg.Gateway.SignatureSkew)
	registry := service.NewCachingTenantRegistry(tenantRepo)
	coord := service.NewStoreCoordinator(idempotencyRepo, idempotencyCache, cfg.Gateway.IdempotencyTTL)
	ledger := service.NewLedgerEngine(ledgerRepo, journalRepo, transactor)
	pipeline := service.NewGatewayPipeline(tenantID, registry, verifier, coord, ledger)
	topup := service.NewTopupEngine(coord, ledger)

	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		TenantID:       tenantID,
		Pipeline:       pipeline,
		Topup:          topup,
		Ledger:         ledger,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
