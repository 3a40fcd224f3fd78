// Package main is the entry point for the condition worker. It initializes
// all components and manages the application lifecycle.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexus-edge/condition-worker/internal/adapter/config"
	"github.com/nexus-edge/condition-worker/internal/adapter/modbus"
	"github.com/nexus-edge/condition-worker/internal/adapter/mqtt"
	"github.com/nexus-edge/condition-worker/internal/adapter/postgres"
	"github.com/nexus-edge/condition-worker/internal/domain"
	"github.com/nexus-edge/condition-worker/internal/health"
	"github.com/nexus-edge/condition-worker/internal/license"
	"github.com/nexus-edge/condition-worker/internal/metrics"
	"github.com/nexus-edge/condition-worker/internal/service"
	"github.com/nexus-edge/condition-worker/pkg/logging"
)

const (
	serviceName    = "condition-worker"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewWithConfig(serviceName, serviceVersion, logging.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger.Info().Str("env", cfg.Environment).Msg("Starting condition worker")

	metricsRegistry := metrics.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	store, err := postgres.NewStore(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()
	logger.Info().Msg("Database connection established")

	// License validator bound to this machine's fingerprint
	fingerprint, err := license.Fingerprint()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to compute machine fingerprint")
	}
	validator := license.NewValidator(cfg.License.SecretKey, cfg.License.IV, fingerprint, logger)
	logger.Info().Str("fingerprint", fingerprint).Msg("Machine fingerprint computed")

	// Modbus gateway pool
	pool := modbus.NewGatewayPool(modbus.PoolConfig{
		RequestTimeout:    cfg.Modbus.RequestTimeout,
		ConnectAttempts:   cfg.Modbus.ConnectAttempts,
		ConnectRetryDelay: cfg.Modbus.ConnectRetryDelay,
	}, logger, metricsRegistry)

	// Optional MQTT condition events
	var events service.EventPublisher
	var publisher *mqtt.Publisher
	if cfg.MQTT.BrokerURL != "" {
		publisher = mqtt.NewPublisher(mqtt.Config{
			BrokerURL:      cfg.MQTT.BrokerURL,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            cfg.MQTT.QoS,
			Retain:         cfg.MQTT.Retain,
			KeepAlive:      cfg.MQTT.KeepAlive,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			ReconnectDelay: cfg.MQTT.ReconnectDelay,
			PublishTimeout: cfg.MQTT.PublishTimeout,
			TLSEnabled:     cfg.MQTT.TLSEnabled,
			TLSCertFile:    cfg.MQTT.TLSCertFile,
			TLSKeyFile:     cfg.MQTT.TLSKeyFile,
			TLSCAFile:      cfg.MQTT.TLSCAFile,
		}, logger, metricsRegistry)
		if err := publisher.Connect(ctx); err != nil {
			logger.Warn().Err(err).Msg("MQTT broker unavailable, continuing without condition events")
		} else {
			defer publisher.Disconnect()
		}
		events = publisher
	}

	// Services
	reader := modbus.NewSensorReader(logger, metricsRegistry)
	dwell := service.NewDwellTracker(store, logger)
	recorder := service.NewConditionRecorder(store, events, metricsRegistry, logger)
	logWriter := service.NewLogHistoryWriter(store, metricsRegistry, logger)
	daily := service.NewDailyCalculator(store, metricsRegistry, domain.WIB, logger)

	scheduler := service.NewPollingScheduler(service.SchedulerConfig{
		DefaultLogFreqMinutes: cfg.Polling.DefaultLogFreqMinutes,
		RetryDelay:            cfg.Polling.RetryDelay,
		InterSensorDelay:      cfg.Polling.InterSensorDelay,
		CycleYield:            cfg.Polling.CycleYield,
		WatcherInterval:       cfg.Polling.WatcherInterval,
		DailyCronExpr:         cfg.Polling.DailyCronExpr,
	}, store, pool, reader, dwell, recorder, logWriter, validator, daily, metricsRegistry, domain.WIB, logger)

	// Health checks and HTTP server
	healthChecker := health.NewChecker(health.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
	})
	healthChecker.AddCheck("database", store)
	healthChecker.AddCheck("gateway_pool", pool)
	if publisher != nil {
		healthChecker.AddCheck("mqtt", publisher)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthChecker.HealthHandler)
	mux.HandleFunc("/health/live", healthChecker.LivenessHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Run the scheduler; it owns the crons and the pool shutdown.
	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- scheduler.Run(ctx)
	}()

	logger.Info().
		Int("http_port", cfg.HTTP.Port).
		Str("mqtt_broker", cfg.MQTT.BrokerURL).
		Msg("Condition worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-schedulerDone; err != nil {
			logger.Error().Err(err).Msg("Scheduler stopped with error")
		}
	case err := <-schedulerDone:
		if err != nil {
			logger.Error().Err(err).Msg("Scheduler exited unexpectedly")
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	logger.Info().Msg("Condition worker shutdown complete")
}
