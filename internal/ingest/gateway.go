// Package ingest accepts sensor readings, persists them and schedules
// threshold evaluation.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agrismart-monitor/internal/clock"
	"agrismart-monitor/internal/evaluator"
	"agrismart-monitor/internal/events"
	"agrismart-monitor/internal/models"
	"agrismart-monitor/internal/repository"
)

const DefaultEvalConcurrency = 32

// RawMeasurement is one reading as submitted by a field gateway.
type RawMeasurement struct {
	SensorID   string     `json:"sensor_id"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit,omitempty"`
	MeasuredAt *time.Time `json:"measured_at,omitempty"`
}

// BatchItemError describes why one batch item was rejected.
type BatchItemError struct {
	Index    int    `json:"index"`
	SensorID string `json:"sensor_id,omitempty"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

type BatchResult struct {
	InsertedCount int                   `json:"inserted_count"`
	Measurements  []*models.Measurement `json:"measurements,omitempty"`
	Errors        []BatchItemError      `json:"errors"`
}

// AlertRaiser is the alert lifecycle entry point used after evaluation.
type AlertRaiser interface {
	RaiseIfNeeded(ctx context.Context, sensor *models.Sensor, verdict evaluator.Verdict, value float64) (*models.Alert, error)
}

type Options struct {
	Sensors         repository.SensorRepository
	Measurements    repository.MeasurementRepository
	Evaluator       *evaluator.Evaluator
	Alerts          AlertRaiser
	Publisher       events.Publisher
	Clock           clock.Clock
	EvalConcurrency int
	Logger          *zap.Logger
}

// Gateway is the ingestion entry point. Evaluation runs after the measurement
// is committed, on a bounded pool of slots, and never affects the result of
// the ingest call.
type Gateway struct {
	sensors      repository.SensorRepository
	measurements repository.MeasurementRepository
	evaluator    *evaluator.Evaluator
	alerts       AlertRaiser
	publisher    events.Publisher
	clock        clock.Clock
	logger       *zap.Logger

	slots chan struct{}
	wg    sync.WaitGroup
}

func NewGateway(opts Options) *Gateway {
	n := opts.EvalConcurrency
	if n <= 0 {
		n = DefaultEvalConcurrency
	}
	g := &Gateway{
		sensors:      opts.Sensors,
		measurements: opts.Measurements,
		evaluator:    opts.Evaluator,
		alerts:       opts.Alerts,
		publisher:    opts.Publisher,
		clock:        opts.Clock,
		logger:       opts.Logger,
		slots:        make(chan struct{}, n),
	}
	if g.publisher == nil {
		g.publisher = events.Nop{}
	}
	if g.clock == nil {
		g.clock = clock.System{}
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Ingest validates, persists and publishes one reading. measuredAt defaults to now.
func (g *Gateway) Ingest(ctx context.Context, sensorID string, value float64, unit string, measuredAt *time.Time) (*models.Measurement, error) {
	raw := RawMeasurement{SensorID: sensorID, Value: value, Unit: unit, MeasuredAt: measuredAt}
	if err := validate(raw); err != nil {
		return nil, err
	}
	sensor, err := g.sensors.GetSensor(ctx, raw.SensorID)
	if err != nil {
		return nil, err
	}

	m := g.build(sensor, raw)
	if err := g.measurements.InsertMeasurements(ctx, []*models.Measurement{m}); err != nil {
		return nil, err
	}

	g.afterInsert(ctx, sensor, m)
	return m, nil
}

// IngestBatch handles every item independently. Items that fail validation
// or sensor lookup are reported in Errors; the rest are inserted as one
// atomic group. A storage failure on that group is returned as an error.
func (g *Gateway) IngestBatch(ctx context.Context, items []RawMeasurement) (*BatchResult, error) {
	result := &BatchResult{Errors: []BatchItemError{}}

	type accepted struct {
		sensor *models.Sensor
		m      *models.Measurement
	}
	var (
		ok    []accepted
		cache = make(map[string]*models.Sensor)
	)
	for i, raw := range items {
		if err := validate(raw); err != nil {
			result.Errors = append(result.Errors, itemError(i, raw.SensorID, err))
			continue
		}
		sensor, found := cache[raw.SensorID]
		if !found {
			s, err := g.sensors.GetSensor(ctx, raw.SensorID)
			if err != nil {
				if !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrInvalidInput) {
					return nil, err
				}
				result.Errors = append(result.Errors, itemError(i, raw.SensorID, err))
				continue
			}
			cache[raw.SensorID] = s
			sensor = s
		}
		ok = append(ok, accepted{sensor: sensor, m: g.build(sensor, raw)})
	}

	if len(ok) > 0 {
		batch := make([]*models.Measurement, len(ok))
		for i, a := range ok {
			batch[i] = a.m
		}
		if err := g.measurements.InsertMeasurements(ctx, batch); err != nil {
			return nil, err
		}
		result.InsertedCount = len(batch)
		result.Measurements = batch
		for _, a := range ok {
			g.afterInsert(ctx, a.sensor, a.m)
		}
	}

	g.logger.Info("Batch ingested",
		zap.Int("items", len(items)),
		zap.Int("inserted", result.InsertedCount),
		zap.Int("rejected", len(result.Errors)),
	)
	return result, nil
}

// Wait blocks until every scheduled evaluation has finished.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

func (g *Gateway) build(sensor *models.Sensor, raw RawMeasurement) *models.Measurement {
	now := g.clock.Now()
	measuredAt := now
	if raw.MeasuredAt != nil {
		measuredAt = *raw.MeasuredAt
	}
	unit := raw.Unit
	if unit == "" {
		unit = sensor.Type.Unit()
	}
	return &models.Measurement{
		ID:         uuid.NewString(),
		SensorID:   sensor.ID,
		StationID:  sensor.StationID,
		ParcelID:   sensor.ParcelID,
		Value:      raw.Value,
		Unit:       unit,
		MeasuredAt: measuredAt,
		CreatedAt:  now,
	}
}

func (g *Gateway) afterInsert(ctx context.Context, sensor *models.Sensor, m *models.Measurement) {
	events.Emit(ctx, g.publisher, models.Event{
		Type:       models.EventMeasurementNew,
		UserID:     sensor.OwnerID,
		ParcelID:   sensor.ParcelID,
		OccurredAt: m.CreatedAt,
		Payload:    m,
	}, g.logger)

	if g.evaluator == nil || g.alerts == nil {
		return
	}
	evalCtx := context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.slots <- struct{}{}
		defer func() { <-g.slots }()
		g.evaluate(evalCtx, sensor, m)
	}()
}

func (g *Gateway) evaluate(ctx context.Context, sensor *models.Sensor, m *models.Measurement) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Panic during threshold evaluation",
				zap.String("sensor_id", sensor.ID),
				zap.Any("panic", r),
			)
		}
	}()

	verdict := g.evaluator.Evaluate(sensor, m.Value)
	if !verdict.Breach() {
		return
	}
	if _, err := g.alerts.RaiseIfNeeded(ctx, sensor, verdict, m.Value); err != nil {
		g.logger.Error("Failed to raise threshold alert",
			zap.String("sensor_id", sensor.ID),
			zap.String("measurement_id", m.ID),
			zap.String("severity", string(verdict.Severity)),
			zap.Error(err),
		)
	}
}

func validate(raw RawMeasurement) error {
	if strings.TrimSpace(raw.SensorID) == "" {
		return fmt.Errorf("sensor id is required: %w", models.ErrInvalidInput)
	}
	if math.IsNaN(raw.Value) || math.IsInf(raw.Value, 0) {
		return fmt.Errorf("value must be finite: %w", models.ErrInvalidInput)
	}
	return nil
}

func itemError(index int, sensorID string, err error) BatchItemError {
	return BatchItemError{
		Index:    index,
		SensorID: sensorID,
		Reason:   models.ErrorKind(err),
		Detail:   err.Error(),
	}
}
