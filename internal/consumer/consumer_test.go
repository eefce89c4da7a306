package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	commonmqtt "agrismart-monitor/common/mqtt"
	"agrismart-monitor/internal/ingest"
	"agrismart-monitor/internal/models"
)

type fakeSubscriber struct {
	handlers     map[string]commonmqtt.MessageHandler
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, h commonmqtt.MessageHandler) error {
	if f.handlers == nil {
		f.handlers = map[string]commonmqtt.MessageHandler{}
	}
	f.handlers[topic] = h
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

type single struct {
	sensorID   string
	value      float64
	unit       string
	measuredAt *time.Time
}

type fakeIngestor struct {
	singles []single
	batches [][]ingest.RawMeasurement
	result  *ingest.BatchResult
}

func (f *fakeIngestor) Ingest(_ context.Context, sensorID string, value float64, unit string, at *time.Time) (*models.Measurement, error) {
	f.singles = append(f.singles, single{sensorID, value, unit, at})
	return &models.Measurement{ID: "m1", SensorID: sensorID}, nil
}

func (f *fakeIngestor) IngestBatch(_ context.Context, items []ingest.RawMeasurement) (*ingest.BatchResult, error) {
	f.batches = append(f.batches, items)
	if f.result != nil {
		return f.result, nil
	}
	return &ingest.BatchResult{InsertedCount: len(items)}, nil
}

func TestConsumer_SubscribesAndRoutes(t *testing.T) {
	sub := &fakeSubscriber{}
	ing := &fakeIngestor{}
	c := NewConsumer(sub, ing, Config{}, zap.NewNop())
	require.NoError(t, c.Start())

	h, ok := sub.handlers[DefaultMeasurementTopic]
	require.True(t, ok)
	require.NoError(t, h("agrismart/sensors/s42/measurements", []byte(`{"value":18.5,"unit":"%","measured_at":"2026-05-01T10:00:00Z"}`)))

	require.Len(t, ing.singles, 1)
	assert.Equal(t, "s42", ing.singles[0].sensorID)
	assert.Equal(t, 18.5, ing.singles[0].value)
	require.NotNil(t, ing.singles[0].measuredAt)
	assert.Equal(t, 10, ing.singles[0].measuredAt.Hour())

	require.NoError(t, c.Stop())
	assert.ElementsMatch(t, []string{DefaultMeasurementTopic, DefaultBatchTopic}, sub.unsubscribed)
}

func TestHandleMeasurement_Rejects(t *testing.T) {
	c := NewConsumer(&fakeSubscriber{}, &fakeIngestor{}, Config{}, zap.NewNop())

	err := c.HandleMeasurement("agrismart/sensors/s1/measurements", []byte(`not json`))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	err = c.HandleMeasurement("agrismart/sensors/s1/measurements", []byte(`{"unit":"%"}`))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	err = c.HandleMeasurement("agrismart/sensors/s1/measurements", []byte(`{"sensor_id":"s2","value":1}`))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestHandleBatch_BothShapes(t *testing.T) {
	ing := &fakeIngestor{result: &ingest.BatchResult{
		InsertedCount: 1,
		Errors:        []ingest.BatchItemError{{Index: 1, SensorID: "x", Reason: "NotFound"}},
	}}
	c := NewConsumer(&fakeSubscriber{}, ing, Config{}, zap.NewNop())

	require.NoError(t, c.HandleBatch("agrismart/gateways/g1/batch", []byte(`[{"sensor_id":"s1","value":1},{"sensor_id":"x","value":2}]`)))
	require.NoError(t, c.HandleBatch("agrismart/gateways/g1/batch", []byte(`{"measurements":[{"sensor_id":"s1","value":3}]}`)))

	require.Len(t, ing.batches, 2)
	assert.Len(t, ing.batches[0], 2)
	assert.Equal(t, 3.0, ing.batches[1][0].Value)

	assert.ErrorIs(t, c.HandleBatch("t", []byte(`{`)), models.ErrInvalidInput)
}
