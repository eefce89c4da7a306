// Package consumer feeds MQTT telemetry into the ingestion gateway.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	commonmqtt "agrismart-monitor/common/mqtt"
	"agrismart-monitor/internal/ingest"
	"agrismart-monitor/internal/models"
)

const (
	DefaultMeasurementTopic = "agrismart/sensors/+/measurements"
	DefaultBatchTopic       = "agrismart/gateways/+/batch"
)

// Ingestor is the subset of ingest.Gateway used by the consumer.
type Ingestor interface {
	Ingest(ctx context.Context, sensorID string, value float64, unit string, measuredAt *time.Time) (*models.Measurement, error)
	IngestBatch(ctx context.Context, items []ingest.RawMeasurement) (*ingest.BatchResult, error)
}

// Subscriber is implemented by common/mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler commonmqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

type Config struct {
	MeasurementTopic string
	BatchTopic       string
	QoS              byte
	HandleTimeout    time.Duration
}

type measurementPayload struct {
	SensorID   string     `json:"sensor_id,omitempty"`
	Value      *float64   `json:"value"`
	Unit       string     `json:"unit,omitempty"`
	MeasuredAt *time.Time `json:"measured_at,omitempty"`
}

type batchPayload struct {
	Measurements []ingest.RawMeasurement `json:"measurements"`
}

type Consumer struct {
	sub      Subscriber
	ingestor Ingestor
	cfg      Config
	logger   *zap.Logger
}

func NewConsumer(sub Subscriber, ingestor Ingestor, cfg Config, logger *zap.Logger) *Consumer {
	if cfg.MeasurementTopic == "" {
		cfg.MeasurementTopic = DefaultMeasurementTopic
	}
	if cfg.BatchTopic == "" {
		cfg.BatchTopic = DefaultBatchTopic
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 10 * time.Second
	}
	return &Consumer{sub: sub, ingestor: ingestor, cfg: cfg, logger: logger}
}

func (c *Consumer) Start() error {
	if err := c.sub.Subscribe(c.cfg.MeasurementTopic, c.cfg.QoS, c.HandleMeasurement); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", c.cfg.MeasurementTopic, err)
	}
	if err := c.sub.Subscribe(c.cfg.BatchTopic, c.cfg.QoS, c.HandleBatch); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", c.cfg.BatchTopic, err)
	}
	c.logger.Info("MQTT consumer started",
		zap.String("measurement_topic", c.cfg.MeasurementTopic),
		zap.String("batch_topic", c.cfg.BatchTopic),
	)
	return nil
}

func (c *Consumer) Stop() error {
	return c.sub.Unsubscribe(c.cfg.MeasurementTopic, c.cfg.BatchTopic)
}

// HandleMeasurement handles agrismart/sensors/{sensor_id}/measurements. The
// sensor id in the payload, when present, must match the topic.
func (c *Consumer) HandleMeasurement(topic string, payload []byte) error {
	var p measurementPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode measurement: %w: %w", models.ErrInvalidInput, err)
	}
	sensorID := topicSegment(topic, 2)
	if p.SensorID != "" && sensorID != "" && p.SensorID != sensorID {
		return fmt.Errorf("sensor id %q does not match topic: %w", p.SensorID, models.ErrInvalidInput)
	}
	if sensorID == "" {
		sensorID = p.SensorID
	}
	if p.Value == nil {
		return fmt.Errorf("value is required: %w", models.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandleTimeout)
	defer cancel()
	m, err := c.ingestor.Ingest(ctx, sensorID, *p.Value, p.Unit, p.MeasuredAt)
	if err != nil {
		return err
	}
	c.logger.Debug("Measurement ingested from MQTT",
		zap.String("sensor_id", m.SensorID),
		zap.String("measurement_id", m.ID),
	)
	return nil
}

// HandleBatch handles agrismart/gateways/{gateway_id}/batch. The payload is
// either a bare array or {"measurements": [...]}.
func (c *Consumer) HandleBatch(topic string, payload []byte) error {
	var items []ingest.RawMeasurement
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(payload, &items); err != nil {
			return fmt.Errorf("decode batch: %w: %w", models.ErrInvalidInput, err)
		}
	} else {
		var p batchPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode batch: %w: %w", models.ErrInvalidInput, err)
		}
		items = p.Measurements
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandleTimeout)
	defer cancel()
	res, err := c.ingestor.IngestBatch(ctx, items)
	if err != nil {
		return err
	}
	for _, e := range res.Errors {
		c.logger.Warn("Batch item rejected",
			zap.String("gateway_id", topicSegment(topic, 2)),
			zap.Int("index", e.Index),
			zap.String("sensor_id", e.SensorID),
			zap.String("reason", e.Reason),
		)
	}
	return nil
}

func topicSegment(topic string, i int) string {
	parts := strings.Split(topic, "/")
	if i < len(parts) {
		return parts[i]
	}
	return ""
}
