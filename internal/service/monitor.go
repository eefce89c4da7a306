// Package service wires configuration, infrastructure clients and the
// monitoring components into one runnable service.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"agrismart-monitor/common/database"
	commonmqtt "agrismart-monitor/common/mqtt"
	commonredis "agrismart-monitor/common/redis"
	"agrismart-monitor/internal/clock"
	"agrismart-monitor/internal/config"
	"agrismart-monitor/internal/consumer"
	"agrismart-monitor/internal/evaluator"
	"agrismart-monitor/internal/events"
	"agrismart-monitor/internal/lock"
	"agrismart-monitor/internal/repository"
)

// MonitorService owns the infrastructure connections and the component graph.
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *commonmqtt.Client
	kafka       *events.KafkaPublisher
	logger      *zap.Logger

	components *Components
	consumer   *consumer.Consumer
	httpServer *http.Server
}

// NewMonitorService connects Postgres and Redis, and MQTT and Kafka when
// configured, then assembles the components.
func NewMonitorService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	s := &MonitorService{config: cfg, logger: logger}

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	s.db = db

	redisClient, err := commonredis.Connect(ctx, &cfg.Redis)
	if err != nil {
		s.Stop()
		return nil, err
	}
	s.redisClient = redisClient

	stores := Stores{
		Sensors:      repository.NewPostgresSensorRepository(db, logger),
		Measurements: repository.NewPostgresMeasurementRepository(db, logger),
		Alerts:       repository.NewPostgresAlertRepository(db, logger),
		Users:        repository.NewPostgresUserRepository(db, logger),
	}

	var locker lock.Locker = lock.NewKeyMutex()
	if cfg.Alerting.LockBackend == "redis" {
		locker = lock.NewRedisLocker(s.redisClient, "agrismart:lock:", cfg.Alerting.LockTTL, logger)
	}

	var sinks []events.Publisher
	if cfg.Events.RedisStream != "" {
		sinks = append(sinks, events.NewRedisStreamPublisher(s.redisClient, cfg.Events.RedisStream, cfg.Events.RedisStreamMax))
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, logger.Named("kafka"))
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.kafka = kp
		sinks = append(sinks, kp)
	}

	components, err := Assemble(cfg, stores, locker, sinks, clock.System{}, logger)
	if err != nil {
		s.Stop()
		return nil, err
	}
	s.components = components

	if cfg.MQTT.Broker != "" {
		mc, err := commonmqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.mqttClient = mc
		s.consumer = consumer.NewConsumer(mc, components.Gateway, consumer.Config{
			MeasurementTopic: cfg.Ingest.MeasurementTopic,
			BatchTopic:       cfg.Ingest.BatchTopic,
			QoS:              cfg.MQTT.QoS,
		}, logger.Named("mqtt"))
	}

	components.Server.SetHealth(s.Health)
	s.httpServer = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           components.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Health pings the database and Redis and checks the broker connection.
func (s *MonitorService) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if s.mqttClient != nil && !s.mqttClient.IsConnected() {
		return errors.New("mqtt: disconnected")
	}
	return nil
}

// Start runs the service until ctx is cancelled or the HTTP listener fails.
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service", zap.String("http_addr", s.config.HTTP.Addr))

	c := s.components
	liveEvents, cancelLive := c.Bus.Subscribe()
	defer cancelLive()
	go c.Hub.Run(ctx, liveEvents)

	if fp, ok := c.Profiles.(*evaluator.FileProfiles); ok {
		go func() {
			if err := fp.Watch(ctx); err != nil {
				s.logger.Error("Thresholds watcher stopped", zap.Error(err))
			}
		}()
	}

	c.Scheduler.Start(ctx)

	if s.consumer != nil {
		if err := s.consumer.Start(); err != nil {
			return fmt.Errorf("failed to start mqtt consumer: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// Stop releases every connection. Pending evaluations and sweeps are drained first.
func (s *MonitorService) Stop() {
	s.logger.Info("Stopping monitor service")

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.logger.Warn("Failed to unsubscribe mqtt topics", zap.Error(err))
		}
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.components != nil {
		<-s.components.Scheduler.Stop().Done()
		s.components.Gateway.Wait()
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.components.CloseSinks(flushCtx); err != nil {
			s.logger.Warn("Event sinks did not drain", zap.Error(err))
		}
		cancel()
	}
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Error("Failed to close kafka writer", zap.Error(err))
		}
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis", zap.Error(err))
		}
	}
}
