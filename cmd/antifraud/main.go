package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/fintechlab/transaction-service/internal/antifraud"
	"github.com/fintechlab/transaction-service/internal/config"
	"github.com/fintechlab/transaction-service/internal/event"
	"github.com/fintechlab/transaction-service/internal/logger"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "internal/config/config.yaml"
}

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger("antifraud-worker", cfg.Logger.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	threshold, err := decimal.NewFromString(cfg.Antifraud.Threshold)
	if err != nil {
		log.Fatalf("parse antifraud threshold %q: %v", cfg.Antifraud.Threshold, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	statusPub := event.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.StatusTopic, log)
	defer statusPub.Close()

	processor := antifraud.NewProcessor(antifraud.NewEvaluator(threshold), statusPub, log)

	consumer := event.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.AntifraudGroup,
		cfg.Kafka.CreatedTopic, processor.HandleMessage, log)
	defer consumer.Close()

	log.Infof("antifraud worker started, threshold=%s", threshold)
	if err := consumer.Run(ctx); err != nil {
		log.Fatalf("consumer: %v", err)
	}
	log.Info("antifraud worker stopped")
}
