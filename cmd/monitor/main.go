package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/smukkama/pipeline-monitor/internal/alarming"
	"github.com/smukkama/pipeline-monitor/internal/api"
	"github.com/smukkama/pipeline-monitor/internal/engine"
	"github.com/smukkama/pipeline-monitor/internal/leak"
	"github.com/smukkama/pipeline-monitor/internal/logging"
	"github.com/smukkama/pipeline-monitor/internal/metrics"
	"github.com/smukkama/pipeline-monitor/internal/queue"
	"github.com/smukkama/pipeline-monitor/internal/stats"
	"github.com/smukkama/pipeline-monitor/internal/topology"
	"github.com/smukkama/pipeline-monitor/internal/websocket"
	"github.com/smukkama/pipeline-monitor/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New("monitor", cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	logger.Info("Starting Pipeline Monitor...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(engineOptions(cfg, logger))
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}

	tracker := stats.NewTracker(cfg.Pipeline.HistorySize)
	eng.AddListener(tracker)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	eng.AddListener(metrics.NewCollector(registry))

	hub := websocket.NewHub(eng.Snapshot, logger)
	go hub.Run(ctx)
	eng.AddListener(hub)

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, leak-state mirror disabled")
		} else {
			mirror := alarming.NewMirror(alarming.NewStateManager(redisClient, 7*24*time.Hour), logger, time.Hour)
			go mirror.Run(ctx)
			eng.AddListener(mirror)
			logger.WithField("addr", cfg.Redis.Addr).Info("Leak-state mirror enabled")
		}
	}

	var publisherDone chan struct{}
	if cfg.Kafka.Enabled {
		if err := queue.EnsureTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, 3, 1); err != nil {
			logger.WithError(err).Warn("Topic creation failed")
		}
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)
		defer producer.Close()

		publisher := queue.NewAlertPublisher(producer, logger)
		publisherDone = make(chan struct{})
		go func() {
			publisher.Run(ctx)
			close(publisherDone)
		}()
		eng.AddListener(publisher)
		logger.WithField("topic", cfg.Kafka.TopicAlerts).Info("Alert publishing enabled")
	}

	if err := eng.Start(); err != nil {
		logger.Fatalf("Failed to start engine: %v", err)
	}

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(eng, tracker, logger, api.RouterOptions{
		WebSocket: hub.ServeWS,
		Gatherer:  registry,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	logger.WithFields(logrus.Fields{
		"addr":       cfg.HTTP.Addr,
		"simulating": eng.IsSimulating(),
	}).Info("Pipeline Monitor is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown incomplete")
	}

	eng.Close()
	cancel()
	if publisherDone != nil {
		<-publisherDone
	}
	logger.Info("Pipeline Monitor stopped")
}

func engineOptions(cfg *config.Config, logger logrus.FieldLogger) engine.Options {
	opts := engine.DefaultOptions()
	opts.PipelineLengthKm = cfg.Pipeline.LengthKm
	opts.SensorIntervalKm = cfg.Pipeline.SensorIntervalKm
	opts.TickInterval = cfg.Pipeline.TickInterval
	opts.Origin = topology.Origin{Lat: cfg.Pipeline.StartLat, Lng: cfg.Pipeline.StartLng}
	opts.StartSimulating = cfg.Pipeline.AutoStart
	opts.Logger = logger
	if cfg.Pipeline.AutoDetect {
		opts.Detector = leak.FlowConservation{Tolerance: cfg.Pipeline.FlowTolerance}
	}
	return opts
}
