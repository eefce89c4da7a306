package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"agrismart-monitor/common/config"
)

// Config is the monitor service configuration.
type Config struct {
	ServiceName string

	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// Ingestion settings
	Ingest struct {
		// MQTT topics; "+" is the sensor/gateway id
		MeasurementTopic string // agrismart/sensors/+/measurements
		BatchTopic       string // agrismart/gateways/+/batch
		// EvalConcurrency bounds in-flight threshold evaluations
		EvalConcurrency int
	}

	Alerting struct {
		ThresholdWindow time.Duration // default 1h
		OfflineWindow   time.Duration // default 2h
		TrendWindow     time.Duration // default 6h
		// LockBackend: "local" (in-process) or "redis" (shared across gateways)
		LockBackend string
		LockTTL     time.Duration
		// ThresholdsFile is an optional YAML file with per-type profiles, hot reloaded
		ThresholdsFile string
	}

	Sweep struct {
		OfflineSchedule string        // cron spec, default "@every 5m"
		TrendSchedule   string        // cron spec, default "@hourly"
		StaleAfter      time.Duration // default 30m
		TrendLookback   time.Duration // default 24h
	}

	Events struct {
		RedisStream     string // empty disables the Redis stream sink
		RedisStreamMax  int64
		KafkaBrokers    []string // empty disables the Kafka sink
		KafkaTopic      string
		SubscriberQueue int
		SinkQueue       int
		SinkTimeout     time.Duration
	}

	Notify struct {
		Twilio struct {
			BaseURL        string
			AccountSID     string
			AuthToken      string
			FromNumber     string
			WhatsAppNumber string
		}
		SMTP struct {
			Host     string
			Port     int
			Username string
			Password string
			From     string
			Timeout  time.Duration
		}
		TelegramToken string
	}

	Weather struct {
		BaseURL  string
		APIKey   string
		CacheTTL time.Duration
	}

	Diagnosis struct {
		BaseURL string
		APIKey  string
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from the environment. Variables from the
// file named by ENV_FILE (default .env) fill in anything not already set.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	cfg := &Config{}
	cfg.ServiceName = getEnv("SERVICE_NAME", "agrismart-monitor")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = config.GetEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "agrismart")
	cfg.Database.Password = getEnv("DB_PASSWORD", "agrismart")
	cfg.Database.Database = getEnv("DB_NAME", "agrismart_ci")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = config.GetEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = config.GetEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.PoolSize = 20
	cfg.Redis.DialTimeout = 5 * time.Second
	cfg.Redis.ReadTimeout = 3 * time.Second
	cfg.Redis.WriteTimeout = 3 * time.Second
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.ClientID = "agrismart-monitor"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Ingest.MeasurementTopic = getEnv("INGEST_MEASUREMENT_TOPIC", "agrismart/sensors/+/measurements")
	cfg.Ingest.BatchTopic = getEnv("INGEST_BATCH_TOPIC", "agrismart/gateways/+/batch")
	cfg.Ingest.EvalConcurrency = config.GetEnvInt("INGEST_EVAL_CONCURRENCY", 32)

	cfg.Alerting.ThresholdWindow = config.GetEnvDuration("ALERT_THRESHOLD_WINDOW", time.Hour)
	cfg.Alerting.OfflineWindow = config.GetEnvDuration("ALERT_OFFLINE_WINDOW", 2*time.Hour)
	cfg.Alerting.TrendWindow = config.GetEnvDuration("ALERT_TREND_WINDOW", 6*time.Hour)
	cfg.Alerting.LockBackend = getEnv("ALERT_LOCK_BACKEND", "local")
	cfg.Alerting.LockTTL = config.GetEnvDuration("ALERT_LOCK_TTL", 10*time.Second)
	cfg.Alerting.ThresholdsFile = getEnv("THRESHOLDS_FILE", "")

	cfg.Sweep.OfflineSchedule = getEnv("SWEEP_OFFLINE_SCHEDULE", "@every 5m")
	cfg.Sweep.TrendSchedule = getEnv("SWEEP_TREND_SCHEDULE", "@hourly")
	cfg.Sweep.StaleAfter = config.GetEnvDuration("SWEEP_STALE_AFTER", 30*time.Minute)
	cfg.Sweep.TrendLookback = config.GetEnvDuration("SWEEP_TREND_LOOKBACK", 24*time.Hour)

	cfg.Events.RedisStream = getEnv("EVENTS_REDIS_STREAM", "agrismart:events")
	cfg.Events.RedisStreamMax = int64(config.GetEnvInt("EVENTS_REDIS_STREAM_MAXLEN", 10000))
	cfg.Events.KafkaBrokers = config.GetEnvList("EVENTS_KAFKA_BROKERS", nil)
	cfg.Events.KafkaTopic = getEnv("EVENTS_KAFKA_TOPIC", "agrismart.events")
	cfg.Events.SubscriberQueue = config.GetEnvInt("EVENTS_SUBSCRIBER_QUEUE", 64)
	cfg.Events.SinkQueue = config.GetEnvInt("EVENTS_SINK_QUEUE", 1024)
	cfg.Events.SinkTimeout = config.GetEnvDuration("EVENTS_SINK_TIMEOUT", 5*time.Second)

	cfg.Notify.Twilio.BaseURL = getEnv("TWILIO_BASE_URL", "https://api.twilio.com")
	cfg.Notify.Twilio.AccountSID = getEnv("TWILIO_ACCOUNT_SID", "")
	cfg.Notify.Twilio.AuthToken = getEnv("TWILIO_AUTH_TOKEN", "")
	cfg.Notify.Twilio.FromNumber = getEnv("TWILIO_PHONE_NUMBER", "")
	cfg.Notify.Twilio.WhatsAppNumber = getEnv("TWILIO_WHATSAPP_NUMBER", "")
	cfg.Notify.SMTP.Host = getEnv("SMTP_HOST", "")
	cfg.Notify.SMTP.Port = config.GetEnvInt("SMTP_PORT", 587)
	cfg.Notify.SMTP.Username = getEnv("SMTP_USER", "")
	cfg.Notify.SMTP.Password = getEnv("SMTP_PASSWORD", "")
	cfg.Notify.SMTP.From = getEnv("EMAIL_FROM", "AgriSmart CI <noreply@agrismart.ci>")
	cfg.Notify.SMTP.Timeout = config.GetEnvDuration("SMTP_TIMEOUT", 15*time.Second)
	cfg.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")

	cfg.Weather.BaseURL = getEnv("WEATHER_API_URL", "https://api.openweathermap.org/data/2.5")
	cfg.Weather.APIKey = getEnv("WEATHER_API_KEY", "")
	cfg.Weather.CacheTTL = config.GetEnvDuration("WEATHER_CACHE_TTL", 30*time.Minute)

	cfg.Diagnosis.BaseURL = getEnv("DIAGNOSIS_API_URL", "")
	cfg.Diagnosis.APIKey = getEnv("DIAGNOSIS_API_KEY", "")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	return config.GetEnv(key, defaultValue)
}
