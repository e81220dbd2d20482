package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smukkama/pipeline-monitor/internal/database"
	"github.com/smukkama/pipeline-monitor/internal/logging"
	"github.com/smukkama/pipeline-monitor/internal/queue"
	"github.com/smukkama/pipeline-monitor/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New("alertwriter", cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	logger.Info("Starting Alert Writer Service...")

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations("migrations", logger); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, "alertwriter-group")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batchWriter := queue.NewBatchWriter(consumer, db, 50, 2*time.Second, logger)
	batchWriter.Start(ctx)

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := consumer.Stats()
				logger.WithFields(logrus.Fields{
					"messages": stats.Messages,
					"bytes":    stats.Bytes,
					"errors":   stats.Errors,
				}).Info("Consumer stats")
			}
		}
	}()

	logger.WithField("topic", cfg.Kafka.TopicAlerts).Info("Alert Writer Service is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down gracefully...")
	batchWriter.Stop()
	logger.Info("Alert Writer Service stopped")
}
