package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixwallet/config"
	httpHandler "pixwallet/internal/adapter/http/handler"
	"pixwallet/internal/adapter/http/middleware"
	"pixwallet/internal/adapter/messaging/kafka"
	"pixwallet/internal/adapter/provider/market"
	"pixwallet/internal/adapter/provider/pix"
	"pixwallet/internal/adapter/realtime"
	pgStorage "pixwallet/internal/adapter/storage/postgres"
	redisStorage "pixwallet/internal/adapter/storage/redis"
	"pixwallet/internal/core/ports"
	"pixwallet/internal/service"
	"pixwallet/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting pixwallet")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(registry)

	// Repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	depositRepo := pgStorage.NewDepositRepo(pool)
	withdrawalRepo := pgStorage.NewWithdrawalRepo(pool)
	callbackRepo := pgStorage.NewCallbackLogRepo(pool)
	pixKeyRepo := pgStorage.NewPixKeyRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Redis stores
	tokenStore := redisStorage.NewNotifyTokenStore(rdb)
	seenCache := redisStorage.NewCallbackSeenCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// External providers
	pixClient, err := pix.NewClient(cfg.Provider, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PIX provider client")
	}
	marketClient := market.NewClient(cfg.Market)

	var publisher ports.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, kafka.NewPublisherMetrics(registry), log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Kafka")
		}
		publisher = p
		defer publisher.Close()
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka publisher ready")
	}

	// Core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)

	hub := realtime.NewHub(cfg.Notify.SendBuffer, log)
	notificationSvc := service.NewNotificationService(tokenStore, hub, publisher, cfg.Notify.TokenTTL, metrics, log)

	ledgerSvc := service.NewLedgerService(walletRepo, txRepo, transactor, log)
	rateOracle := service.NewRateOracle(marketClient, cfg.Rate, metrics, log)
	exchangeSvc := service.NewExchangeService(rateOracle, ledgerSvc, notificationSvc, metrics, log)
	settler := service.NewSettler(depositRepo, txRepo, ledgerSvc, transactor, encSvc, notificationSvc, metrics, log)
	depositSvc := service.NewDepositService(
		depositRepo,
		txRepo,
		transactor,
		pixClient,
		settler,
		notificationSvc,
		service.NewDepositSettings(cfg),
		metrics,
		log,
	)
	withdrawalSvc := service.NewWithdrawalService(
		withdrawalRepo,
		txRepo,
		pixKeyRepo,
		ledgerSvc,
		transactor,
		pixClient,
		notificationSvc,
		service.WithdrawalSettings{
			MinAmount:       cfg.Withdrawal.MinAmount,
			PayerKey:        cfg.Provider.PayeeKey,
			ProviderTimeout: cfg.Provider.Timeout,
		},
		metrics,
		log,
	)
	reconcilerSvc := service.NewReconcilerService(callbackRepo, seenCache, settler, metrics, log)
	reportingSvc := service.NewReportingService(txRepo)
	auditSvc := service.NewAuditService(auditRepo, log)

	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Ledger:         ledgerSvc,
		Rates:          rateOracle,
		Exchange:       exchangeSvc,
		Deposits:       depositSvc,
		Withdrawals:    withdrawalSvc,
		Reconciler:     reconcilerSvc,
		Notifications:  notificationSvc,
		Reporting:      reportingSvc,
		TokenSvc:       tokenSvc,
		SigSvc:         sigSvc,
		WebhookSecret:  cfg.Provider.WebhookSecret,
		Hub:            hub,
		AllowedOrigins: cfg.Notify.AllowedOrigins,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{
			pgStorage.NewHealthCheck(pool),
			redisStorage.NewHealthCheck(rdb),
		},
		AuditSvc:       auditSvc,
		HTTPMetrics:    middleware.NewHTTPMetrics(registry),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:         log,
	})

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		runExpirySweep(ctx, depositSvc, cfg.Deposit.SweepInterval, log)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	<-sweepDone
	if err := notificationSvc.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Pending wallet events were not all published")
	}

	log.Info().Msg("Server exited")
}

// runExpirySweep fails PENDING deposits past their expiry until ctx ends.
func runExpirySweep(ctx context.Context, deposits ports.DepositService, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		log.Warn().Msg("deposit expiry sweep disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := deposits.ExpireStaleDeposits(ctx, now.UTC())
			if err != nil {
				log.Error().Err(err).Msg("deposit expiry sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("expired", n).Msg("deposit expiry sweep")
			}
		}
	}
}
