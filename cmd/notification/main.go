package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/smukkama/pipeline-monitor/internal/logging"
	"github.com/smukkama/pipeline-monitor/internal/notification"
	"github.com/smukkama/pipeline-monitor/internal/protocol"
	"github.com/smukkama/pipeline-monitor/internal/queue"
	"github.com/smukkama/pipeline-monitor/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New("notification", cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	logger.Info("Starting Notification Service...")

	notifier := notification.NewEmailNotifier(&cfg.SMTP, logger)
	if err := notifier.TestConnection(); err != nil {
		logger.WithError(err).Warn("Notifications will be logged only")
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, "notification-group")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			msg, err := consumer.Consume(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.WithError(err).Warn("Failed to consume message")
				continue
			}

			event, err := protocol.DecodeAlertEvent(msg.Value)
			if err != nil {
				logger.WithError(err).Error("Failed to decode alert event")
				if err := consumer.Commit(ctx, msg); err != nil {
					logger.WithError(err).Warn("Failed to commit offset")
				}
				continue
			}

			// Retries in place; an uncommitted offset is only redelivered
			// after a restart or rebalance.
			if err := notifier.Deliver(ctx, event); err != nil {
				logger.WithError(err).WithField("alert", event.AlertID).Error("Shutting down with notification unsent")
				return
			}

			if err := consumer.Commit(ctx, msg); err != nil {
				logger.WithError(err).Warn("Failed to commit offset")
			}
		}
	}()

	logger.WithField("topic", cfg.Kafka.TopicAlerts).Info("Notification Service is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down gracefully...")
	cancel()
	<-done
}
