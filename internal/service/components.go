package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"agrismart-monitor/internal/alerting"
	"agrismart-monitor/internal/clock"
	"agrismart-monitor/internal/config"
	"agrismart-monitor/internal/diagnosis"
	"agrismart-monitor/internal/evaluator"
	"agrismart-monitor/internal/events"
	"agrismart-monitor/internal/httpapi"
	"agrismart-monitor/internal/ingest"
	"agrismart-monitor/internal/lock"
	"agrismart-monitor/internal/notify"
	"agrismart-monitor/internal/report"
	"agrismart-monitor/internal/repository"
	"agrismart-monitor/internal/sweep"
	"agrismart-monitor/internal/weather"
	"agrismart-monitor/internal/ws"
)

// Stores groups the persistence ports.
type Stores struct {
	Sensors      repository.SensorRepository
	Measurements repository.MeasurementRepository
	Alerts       repository.AlertRepository
	Users        repository.UserRepository
}

// Components is the storage-independent object graph.
type Components struct {
	Profiles   evaluator.ProfileSource
	Evaluator  *evaluator.Evaluator
	Bus        *events.Bus
	Sinks      []*events.Queue
	Hub        *ws.Hub
	Dispatcher *notify.Dispatcher
	Manager    *alerting.Manager
	Gateway    *ingest.Gateway
	Offline    *sweep.OfflineDetector
	Trend      *sweep.TrendAnalyzer
	Status     *sweep.StatusReader
	Scheduler  *sweep.Scheduler
	Exporter   *report.Exporter
	Weather    *weather.Client
	Classifier diagnosis.Classifier
	Server     *httpapi.Server
}

// Assemble builds every component on top of stores. sinks receive every event
// in addition to the in-process bus, each through its own queue.
func Assemble(cfg *config.Config, stores Stores, locker lock.Locker, sinks []events.Publisher, clk clock.Clock, logger *zap.Logger) (*Components, error) {
	if clk == nil {
		clk = clock.System{}
	}
	c := &Components{}

	var profiles evaluator.ProfileSource = evaluator.StaticProfiles(evaluator.DefaultProfiles())
	if cfg.Alerting.ThresholdsFile != "" {
		fp, err := evaluator.NewFileProfiles(cfg.Alerting.ThresholdsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load thresholds file: %w", err)
		}
		profiles = fp
	}
	c.Profiles = profiles
	c.Evaluator = evaluator.NewEvaluator(profiles)

	c.Bus = events.NewBus(cfg.Events.SubscriberQueue, logger)
	c.Hub = ws.NewHub(logger)
	publisher := events.Multi{c.Bus}
	for _, sink := range sinks {
		q := events.NewQueue(fmt.Sprintf("%T", sink), sink, cfg.Events.SinkQueue, cfg.Events.SinkTimeout, logger.Named("events"))
		c.Sinks = append(c.Sinks, q)
		publisher = append(publisher, q)
	}

	c.Dispatcher = notify.NewDispatcher(stores.Users, logger)
	registerNotifiers(cfg, c.Dispatcher, logger)

	c.Manager = alerting.NewManager(alerting.Options{
		Alerts:     stores.Alerts,
		Owners:     stores.Users,
		Locker:     locker,
		Dispatcher: c.Dispatcher,
		Publisher:  publisher,
		Clock:      clk,
		Windows: alerting.Windows{
			Threshold: cfg.Alerting.ThresholdWindow,
			Offline:   cfg.Alerting.OfflineWindow,
			Trend:     cfg.Alerting.TrendWindow,
		},
		Logger: logger.Named("alerting"),
	})

	c.Gateway = ingest.NewGateway(ingest.Options{
		Sensors:         stores.Sensors,
		Measurements:    stores.Measurements,
		Evaluator:       c.Evaluator,
		Alerts:          c.Manager,
		Publisher:       publisher,
		Clock:           clk,
		EvalConcurrency: cfg.Ingest.EvalConcurrency,
		Logger:          logger.Named("ingest"),
	})

	c.Offline = sweep.NewOfflineDetector(stores.Sensors, c.Manager, cfg.Sweep.StaleAfter, logger.Named("sweep"))
	c.Trend = sweep.NewTrendAnalyzer(stores.Sensors, stores.Measurements, c.Evaluator, c.Manager, clk, cfg.Sweep.TrendLookback, logger.Named("sweep"))
	c.Status = sweep.NewStatusReader(stores.Sensors, stores.Measurements, c.Offline, clk)
	c.Scheduler = sweep.NewScheduler(clk, logger.Named("scheduler"))
	if err := c.Scheduler.Add("offline", cfg.Sweep.OfflineSchedule, func(ctx context.Context, now time.Time) error {
		_, err := c.Offline.SweepOffline(ctx, now)
		return err
	}); err != nil {
		return nil, err
	}
	if err := c.Scheduler.Add("trend", cfg.Sweep.TrendSchedule, func(ctx context.Context, now time.Time) error {
		_, err := c.Trend.Sweep(ctx, now)
		return err
	}); err != nil {
		return nil, err
	}

	c.Exporter = report.NewExporter(stores.Measurements, stores.Sensors, clk, logger.Named("report"))

	opts := httpapi.Options{
		Ingestor: c.Gateway,
		Alerts:   c.Manager,
		Sensors:  c.Status,
		Exporter: c.Exporter,
		Live:     c.Hub,
		Logger:   logger.Named("http"),
	}
	if cfg.Weather.APIKey != "" {
		c.Weather = weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey, cfg.Weather.CacheTTL, clk, logger.Named("weather"))
		opts.Weather = c.Weather
	}
	if cfg.Diagnosis.BaseURL != "" {
		c.Classifier = diagnosis.NewRemoteClassifier(cfg.Diagnosis.BaseURL, cfg.Diagnosis.APIKey, diagnosis.DefaultMinConfidence, logger.Named("diagnosis"))
		opts.Classifier = c.Classifier
	}
	c.Server = httpapi.NewServer(opts)

	return c, nil
}

// CloseSinks flushes the external event queues.
func (c *Components) CloseSinks(ctx context.Context) error {
	var errs []error
	for _, q := range c.Sinks {
		if err := q.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func registerNotifiers(cfg *config.Config, d *notify.Dispatcher, logger *zap.Logger) {
	n := cfg.Notify
	if n.SMTP.Host != "" {
		d.Register(notify.ChannelEmail, notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     n.SMTP.Host,
			Port:     n.SMTP.Port,
			Username: n.SMTP.Username,
			Password: n.SMTP.Password,
			From:     n.SMTP.From,
			Timeout:  n.SMTP.Timeout,
		}))
	}
	if n.Twilio.AccountSID != "" {
		twilio := notify.NewTwilioClient(notify.TwilioConfig{
			BaseURL:        n.Twilio.BaseURL,
			AccountSID:     n.Twilio.AccountSID,
			AuthToken:      n.Twilio.AuthToken,
			FromNumber:     n.Twilio.FromNumber,
			WhatsAppNumber: n.Twilio.WhatsAppNumber,
		}, logger.Named("twilio"))
		if n.Twilio.FromNumber != "" {
			d.Register(notify.ChannelSMS, twilio.SMS())
		}
		if n.Twilio.WhatsAppNumber != "" {
			d.Register(notify.ChannelWhatsApp, twilio.WhatsApp())
		}
	}
	if n.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifier(n.TelegramToken)
		if err != nil {
			logger.Warn("Push channel disabled", zap.Error(err))
		} else {
			d.Register(notify.ChannelPush, tg)
		}
	}
	logger.Info("Notification channels registered", zap.Any("channels", d.Registered()))
}
