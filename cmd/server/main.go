package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubp2p/exchange-service/internal/api"
	"github.com/hubp2p/exchange-service/internal/changefeed"
	"github.com/hubp2p/exchange-service/internal/config"
	"github.com/hubp2p/exchange-service/internal/handler"
	"github.com/hubp2p/exchange-service/internal/infrastructure/kafka"
	"github.com/hubp2p/exchange-service/internal/infrastructure/pushover"
	"github.com/hubp2p/exchange-service/internal/infrastructure/rates"
	"github.com/hubp2p/exchange-service/internal/infrastructure/redis"
	"github.com/hubp2p/exchange-service/internal/observability"
	core "github.com/hubp2p/exchange-service/internal/repository/postgres"
	service "github.com/hubp2p/exchange-service/internal/services"
	"github.com/hubp2p/exchange-service/internal/worker"
	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	shutdownTracer, _ := observability.Setup("exchange-service")
	defer shutdownTracer(context.Background())

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	transactionRepo := core.NewPostgresTransactionRepository(db)
	accountRepo := core.NewPostgresPaymentAccountRepository(db)
	kycRepo := core.NewPostgresKYCRepository(db)
	notificationRepo := core.NewPostgresNotificationLogRepository(db)
	userRepo := core.NewPostgresUserRepository(db)

	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	marketSource := rates.NewClient(cfg.FiatRateBaseURL, cfg.CryptoRateBaseURL, cfg.RateFetchTimeout)
	pushClient := pushover.NewClient("", cfg.PushoverToken, cfg.PushoverUserKey, cfg.PushoverTimeout)

	rateSvc := service.NewRateService(marketSource, redisClient, cfg.QuoteCacheTTL)
	transactionSvc := service.NewTransactionService(transactionRepo, accountRepo, rateSvc, producer, cfg.KafkaTopic)
	accountSvc := service.NewAccountService(accountRepo)
	kycSvc := service.NewKYCService(kycRepo)
	notifierSvc := service.NewNotifierService(transactionRepo, notificationRepo, pushClient)
	authSvc := service.NewAuthService(userRepo, redisClient, cfg.JWTSecret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Notification dispatch runs off the lifecycle topic, decoupled from the
	// request path.
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, "exchange-notifier", notifierSvc)
	go consumer.Consume(ctx)
	defer consumer.Close()

	// Bridge committed row changes into the in-process bus feeding SSE.
	bus := changefeed.NewBus()
	feed, err := changefeed.NewListener(cfg.PostgresDSN, core.ChangefeedChannel, bus)
	if err != nil {
		log.Fatalf("Failed to start changefeed listener: %v", err)
	}
	go feed.Run(ctx)
	defer feed.Close()

	sweeper := worker.NewSweeper(transactionSvc, cfg.SweepInterval)
	go sweeper.Run(ctx)

	h := handler.NewHandler(authSvc, rateSvc, transactionSvc, accountSvc, kycSvc, notifierSvc, bus)
	router := api.SetupRouter(h, redisClient, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
	go func() {
		slog.Info("server started", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	slog.Info("server stopped")
}
