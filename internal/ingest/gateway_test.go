package ingest

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agrismart-monitor/internal/alerting"
	"agrismart-monitor/internal/clock"
	"agrismart-monitor/internal/evaluator"
	"agrismart-monitor/internal/events"
	"agrismart-monitor/internal/models"
	"agrismart-monitor/internal/repository"
)

type recordingRaiser struct {
	mu    sync.Mutex
	calls []float64
	err   error
}

func (r *recordingRaiser) RaiseIfNeeded(_ context.Context, _ *models.Sensor, _ evaluator.Verdict, value float64) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, value)
	return nil, r.err
}

func (r *recordingRaiser) values() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.calls...)
}

var t0 = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func seededStore() *repository.MemoryStore {
	store := repository.NewMemoryStore()
	for _, s := range []models.Sensor{
		{ID: "s1", Type: models.SensorSoilMoisture, StationID: "st1", StationName: "Nord", ParcelID: "p1", OwnerID: "u1", Status: models.SensorActive},
		{ID: "s2", Type: models.SensorAirTemperature, StationID: "st1", StationName: "Nord", ParcelID: "p1", OwnerID: "u1", Status: models.SensorActive},
	} {
		store.PutSensor(s)
	}
	return store
}

func newGateway(store *repository.MemoryStore, raiser AlertRaiser, pub events.Publisher) *Gateway {
	return NewGateway(Options{
		Sensors:      store,
		Measurements: store,
		Evaluator:    evaluator.NewEvaluator(evaluator.StaticProfiles(evaluator.DefaultProfiles())),
		Alerts:       raiser,
		Publisher:    pub,
		Clock:        clock.NewFake(t0),
		Logger:       zap.NewNop(),
	})
}

func TestIngest_PersistsAndEvaluates(t *testing.T) {
	store := seededStore()
	raiser := &recordingRaiser{}
	bus := events.NewBus(8, zap.NewNop())
	sub, cancel := bus.Subscribe()
	defer cancel()
	g := newGateway(store, raiser, bus)

	m, err := g.Ingest(context.Background(), "s1", 8, "", nil)
	require.NoError(t, err)
	g.Wait()

	assert.Equal(t, "%", m.Unit)
	assert.Equal(t, "p1", m.ParcelID)
	assert.True(t, t0.Equal(m.MeasuredAt))
	assert.Equal(t, []float64{8}, raiser.values())

	ev := <-sub
	assert.Equal(t, models.EventMeasurementNew, ev.Type)

	s, err := store.GetSensor(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, s.LastMeasurementAt)
}

func TestIngest_NormalValueSkipsAlerting(t *testing.T) {
	store := seededStore()
	raiser := &recordingRaiser{}
	g := newGateway(store, raiser, nil)

	_, err := g.Ingest(context.Background(), "s1", 50, "%", nil)
	require.NoError(t, err)
	g.Wait()
	assert.Empty(t, raiser.values())
}

func TestIngest_Validation(t *testing.T) {
	g := newGateway(seededStore(), &recordingRaiser{}, nil)
	ctx := context.Background()

	_, err := g.Ingest(ctx, "", 1, "", nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = g.Ingest(ctx, "s1", math.NaN(), "", nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = g.Ingest(ctx, "s1", math.Inf(1), "", nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = g.Ingest(ctx, "ghost", 1, "", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIngest_EvaluationFailureDoesNotFailIngest(t *testing.T) {
	store := seededStore()
	raiser := &recordingRaiser{err: models.ErrStorage}
	g := newGateway(store, raiser, nil)

	m, err := g.Ingest(context.Background(), "s1", 2, "", nil)
	require.NoError(t, err)
	g.Wait()

	stored, err := store.ListMeasurements(context.Background(), models.MeasurementFilter{SensorID: "s1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, m.ID, stored[0].ID)
}

func TestIngest_CancelledRequestStillEvaluates(t *testing.T) {
	store := seededStore()
	raiser := &recordingRaiser{}
	g := newGateway(store, raiser, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := g.Ingest(ctx, "s1", 2, "", nil)
	require.NoError(t, err)
	cancel()
	g.Wait()
	assert.Len(t, raiser.values(), 1)
}

func TestIngest_LatestMeasuredAtWins(t *testing.T) {
	store := seededStore()
	g := newGateway(store, &recordingRaiser{}, nil)
	ctx := context.Background()

	late := t0.Add(-time.Minute)
	early := t0.Add(-time.Hour)
	_, err := g.Ingest(ctx, "s1", 50, "", &late)
	require.NoError(t, err)
	_, err = g.Ingest(ctx, "s1", 51, "", &early)
	require.NoError(t, err)
	g.Wait()

	s, err := store.GetSensor(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, late.Equal(*s.LastMeasurementAt))
}

func TestIngestBatch_PartialSuccess(t *testing.T) {
	store := seededStore()
	g := newGateway(store, &recordingRaiser{}, nil)

	res, err := g.IngestBatch(context.Background(), []RawMeasurement{
		{SensorID: "s1", Value: 40},
		{SensorID: "unknown", Value: 41},
		{SensorID: "s2", Value: 25},
	})
	require.NoError(t, err)
	g.Wait()

	assert.Equal(t, 2, res.InsertedCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, "NotFound", res.Errors[0].Reason)
	assert.Equal(t, "unknown", res.Errors[0].SensorID)

	all, err := store.ListMeasurements(context.Background(), models.MeasurementFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestIngestBatch_MalformedSensorIDOnPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cols := []string{
		"id", "type", "station_id", "station_name", "parcel_id", "parcel_name",
		"owner_id", "threshold", "status", "last_measurement_at",
	}
	mock.ExpectQuery(`SELECT`).WithArgs("s1").WillReturnRows(sqlmock.NewRows(cols).
		AddRow("s1", "soil_moisture", "st1", "Nord", "p1", "Oliviers", "u1", nil, "active", nil))
	mock.ExpectQuery(`SELECT`).WithArgs("sensor-99").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "sensor-99"`})
	mock.ExpectQuery(`SELECT`).WithArgs("s2").WillReturnRows(sqlmock.NewRows(cols).
		AddRow("s2", "air_temperature", "st1", "Nord", "p1", "Oliviers", "u1", nil, "active", nil))

	store := repository.NewMemoryStore()
	g := NewGateway(Options{
		Sensors:      repository.NewPostgresSensorRepository(db, zap.NewNop()),
		Measurements: store,
		Clock:        clock.NewFake(t0),
	})

	res, err := g.IngestBatch(context.Background(), []RawMeasurement{
		{SensorID: "s1", Value: 40},
		{SensorID: "sensor-99", Value: 41},
		{SensorID: "s2", Value: 25},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.InsertedCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, "NotFound", res.Errors[0].Reason)
	require.NoError(t, mock.ExpectationsWereMet())

	all, err := store.ListMeasurements(context.Background(), models.MeasurementFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestIngestBatch_CountsAddUp(t *testing.T) {
	g := newGateway(seededStore(), &recordingRaiser{}, nil)
	items := []RawMeasurement{
		{SensorID: "s1", Value: 40},
		{SensorID: "", Value: 1},
		{SensorID: "s2", Value: math.NaN()},
		{SensorID: "s2", Value: 22},
		{SensorID: "nope", Value: 3},
	}
	res, err := g.IngestBatch(context.Background(), items)
	require.NoError(t, err)
	g.Wait()

	assert.Equal(t, len(items), res.InsertedCount+len(res.Errors))
	assert.Equal(t, "InvalidInput", res.Errors[0].Reason)
	assert.Equal(t, "InvalidInput", res.Errors[1].Reason)
	assert.Equal(t, "NotFound", res.Errors[2].Reason)
}

type failingMeasurements struct {
	*repository.MemoryStore
}

func (failingMeasurements) InsertMeasurements(context.Context, []*models.Measurement) error {
	return models.ErrStorage
}

func TestIngestBatch_StorageFailure(t *testing.T) {
	store := seededStore()
	raiser := &recordingRaiser{}
	g := NewGateway(Options{
		Sensors:      store,
		Measurements: failingMeasurements{store},
		Evaluator:    evaluator.NewEvaluator(evaluator.StaticProfiles(evaluator.DefaultProfiles())),
		Alerts:       raiser,
		Clock:        clock.NewFake(t0),
	})

	_, err := g.IngestBatch(context.Background(), []RawMeasurement{{SensorID: "s1", Value: 2}})
	assert.ErrorIs(t, err, models.ErrStorage)
	g.Wait()
	assert.Empty(t, raiser.values())
}

// Scenario: value 8 raises a critical alert, value 9 in the same hour is suppressed.
func TestIngest_WithAlertManager(t *testing.T) {
	store := seededStore()
	clk := clock.NewFake(t0)
	manager := alerting.NewManager(alerting.Options{Alerts: store, Owners: store, Clock: clk})
	g := NewGateway(Options{
		Sensors:      store,
		Measurements: store,
		Evaluator:    evaluator.NewEvaluator(evaluator.StaticProfiles(evaluator.DefaultProfiles())),
		Alerts:       manager,
		Clock:        clk,
	})
	ctx := context.Background()

	_, err := g.Ingest(ctx, "s1", 8, "", nil)
	require.NoError(t, err)
	g.Wait()
	clk.Advance(5 * time.Minute)
	_, err = g.Ingest(ctx, "s1", 9, "", nil)
	require.NoError(t, err)
	g.Wait()

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
}
