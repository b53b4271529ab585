package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fintechlab/transaction-service/internal/config"
	"github.com/fintechlab/transaction-service/internal/event"
	"github.com/fintechlab/transaction-service/internal/logger"
	"github.com/fintechlab/transaction-service/internal/model"
	"github.com/fintechlab/transaction-service/internal/repo"
	"github.com/fintechlab/transaction-service/internal/service"
	httptransport "github.com/fintechlab/transaction-service/internal/transport/http"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "internal/config/config.yaml"
}

func main() {
	// 1. env + config
	_ = godotenv.Load()
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger("transaction-server", cfg.Logger.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.Transaction{}, &model.IdempotencyKey{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka: outbound created events, inbound status events
	createdPub := event.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.CreatedTopic, log)
	defer createdPub.Close()

	// 6. repo & services
	repository := repo.NewRepository(gdb, rdb, log)
	svc := service.NewTransactionService(repository, createdPub,
		time.Duration(cfg.Postgres.LockTimeoutSeconds)*time.Second, log)
	applier := service.NewStatusApplier(repository, log)

	// 7. status consumer alongside the API
	consumer := event.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.StatusGroup,
		cfg.Kafka.StatusTopic, applier.HandleMessage, log)
	defer consumer.Close()
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Errorf("status consumer stopped: %v", err)
			stop()
		}
	}()

	// 8. gin router
	router := httptransport.NewRouter(svc, cfg.RateLimit, log)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		log.Infof("transaction-server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("listen: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
