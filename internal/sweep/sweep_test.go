package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agrismart-monitor/internal/alerting"
	"agrismart-monitor/internal/clock"
	"agrismart-monitor/internal/evaluator"
	"agrismart-monitor/internal/models"
	"agrismart-monitor/internal/repository"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func sensor(id string, typ models.SensorType, last *time.Time, status models.SensorStatus) models.Sensor {
	return models.Sensor{
		ID: id, Type: typ, StationID: "st1", StationName: "Nord",
		ParcelID: "p1", OwnerID: "u1", Status: status, LastMeasurementAt: last,
	}
}

func newManager(store *repository.MemoryStore, clk clock.Clock) *alerting.Manager {
	return alerting.NewManager(alerting.Options{Alerts: store, Owners: store, Clock: clk, Logger: zap.NewNop()})
}

func TestSweepOffline_RunTwiceWithinWindow(t *testing.T) {
	store := repository.NewMemoryStore()
	store.PutSensor(sensor("silent", models.SensorSoilMoisture, ptrTime(t0.Add(-time.Hour)), models.SensorActive))
	store.PutSensor(sensor("never", models.SensorSoilPH, nil, models.SensorActive))
	store.PutSensor(sensor("fresh", models.SensorSoilMoisture, ptrTime(t0.Add(-5*time.Minute)), models.SensorActive))
	store.PutSensor(sensor("parked", models.SensorSoilMoisture, nil, models.SensorMaintenance))

	clk := clock.NewFake(t0)
	d := NewOfflineDetector(store, newManager(store, clk), 0, zap.NewNop())

	first, err := d.SweepOffline(context.Background(), t0)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	clk.Advance(time.Hour)
	second, err := d.SweepOffline(context.Background(), clk.Now())
	require.NoError(t, err)
	assert.Empty(t, second)

	assert.Len(t, store.Alerts(), 2)
	for _, a := range store.Alerts() {
		assert.Equal(t, models.CategorySensorOffline, a.Category)
	}
}

func TestSweepOffline_StaleBoundary(t *testing.T) {
	d := NewOfflineDetector(nil, nil, 30*time.Minute, zap.NewNop())
	assert.False(t, d.Stale(ptrTime(t0.Add(-30*time.Minute)), t0))
	assert.True(t, d.Stale(ptrTime(t0.Add(-31*time.Minute)), t0))
	assert.True(t, d.Stale(nil, t0))
}

type countingRaiser struct {
	calls  int32
	cancel context.CancelFunc
}

func (c *countingRaiser) RaiseOffline(_ context.Context, s *models.Sensor, _ time.Time) (*models.Alert, error) {
	atomic.AddInt32(&c.calls, 1)
	c.cancel()
	return &models.Alert{ID: s.ID}, nil
}

func TestSweepOffline_StopsBetweenSensorsOnCancel(t *testing.T) {
	store := repository.NewMemoryStore()
	for _, id := range []string{"a", "b", "c"} {
		store.PutSensor(sensor(id, models.SensorSoilMoisture, nil, models.SensorActive))
	}
	ctx, cancel := context.WithCancel(context.Background())
	raiser := &countingRaiser{cancel: cancel}
	d := NewOfflineDetector(store, raiser, 0, zap.NewNop())

	created, err := d.SweepOffline(ctx, t0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, created, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&raiser.calls))
}

func seedSeries(t *testing.T, store *repository.MemoryStore, sensorID string, values ...float64) {
	t.Helper()
	ms := make([]*models.Measurement, len(values))
	for i, v := range values {
		ms[i] = &models.Measurement{
			ID:         sensorID + string(rune('a'+i)),
			SensorID:   sensorID,
			Value:      v,
			MeasuredAt: t0.Add(-time.Duration(len(values)-i) * time.Hour),
		}
	}
	require.NoError(t, store.InsertMeasurements(context.Background(), ms))
}

func newAnalyzer(store *repository.MemoryStore, clk clock.Clock) *TrendAnalyzer {
	eval := evaluator.NewEvaluator(evaluator.StaticProfiles(evaluator.DefaultProfiles()))
	return NewTrendAnalyzer(store, store, eval, newManager(store, clk), clk, 0, zap.NewNop())
}

func TestAnalyzeTrend_Finding(t *testing.T) {
	store := repository.NewMemoryStore()
	s := sensor("s1", models.SensorSoilMoisture, nil, models.SensorActive)
	store.PutSensor(s)
	// mean 60, latest 75 -> +25% and above 72 (0.9 * 80)
	seedSeries(t, store, "s1", 55, 55, 55, 60, 75)

	a := newAnalyzer(store, clock.NewFake(t0))
	findings, err := a.AnalyzeTrend(context.Background(), &s, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.InDelta(t, 60.0, f.Mean, 1e-9)
	assert.Equal(t, 75.0, f.Latest)
	assert.InDelta(t, 0.25, f.Variation, 1e-9)
	assert.InDelta(t, 7.745966692, f.StdDev, 1e-6)
	assert.Equal(t, 5, f.Samples)
}

func TestAnalyzeTrend_NoFinding(t *testing.T) {
	cases := []struct {
		name   string
		typ    models.SensorType
		values []float64
	}{
		{"single sample", models.SensorSoilMoisture, []float64{90}},
		{"rise below near-max", models.SensorSoilMoisture, []float64{40, 40, 60}},
		{"near max but flat", models.SensorSoilMoisture, []float64{74, 75, 76}},
		{"downward", models.SensorSoilMoisture, []float64{90, 90, 10}},
		{"unmonitored type", models.SensorLight, []float64{100, 100, 1000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			s := sensor("s1", tc.typ, nil, models.SensorActive)
			store.PutSensor(s)
			seedSeries(t, store, "s1", tc.values...)

			findings, err := newAnalyzer(store, clock.NewFake(t0)).AnalyzeTrend(context.Background(), &s, 0)
			require.NoError(t, err)
			assert.Empty(t, findings)
		})
	}
}

func TestAnalyzeTrend_LatestByMeasuredAt(t *testing.T) {
	store := repository.NewMemoryStore()
	s := sensor("s1", models.SensorSoilMoisture, nil, models.SensorActive)
	store.PutSensor(s)
	// The 75 reading arrives last but was measured first.
	require.NoError(t, store.InsertMeasurements(context.Background(), []*models.Measurement{
		{ID: "m1", SensorID: "s1", Value: 55, MeasuredAt: t0.Add(-3 * time.Hour)},
		{ID: "m2", SensorID: "s1", Value: 55, MeasuredAt: t0.Add(-time.Hour)},
		{ID: "m3", SensorID: "s1", Value: 75, MeasuredAt: t0.Add(-5 * time.Hour)},
	}))

	findings, err := newAnalyzer(store, clock.NewFake(t0)).AnalyzeTrend(context.Background(), &s, 0)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestTrendSweep_RaisesOnce(t *testing.T) {
	store := repository.NewMemoryStore()
	store.PutSensor(sensor("s1", models.SensorSoilMoisture, nil, models.SensorActive))
	seedSeries(t, store, "s1", 55, 55, 55, 60, 75)
	clk := clock.NewFake(t0)
	a := newAnalyzer(store, clk)

	created, err := a.Sweep(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, models.CategoryTrend, created[0].Category)
	assert.Equal(t, models.SeverityWarning, created[0].Severity)

	again, err := a.Sweep(context.Background(), t0)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestScheduler_RunsJob(t *testing.T) {
	s := NewScheduler(clock.System{}, zap.NewNop())
	var runs int32
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context, _ time.Time) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	<-s.Stop().Done()
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil, zap.NewNop())
	err := s.Add("bad", "every now and then", func(context.Context, time.Time) error { return nil })
	assert.Error(t, err)
}
