package sweep

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"agrismart-monitor/internal/clock"
	"agrismart-monitor/internal/evaluator"
	"agrismart-monitor/internal/models"
	"agrismart-monitor/internal/repository"
)

const (
	DefaultTrendWindow = 24 * time.Hour

	// A finding needs the latest reading more than 20% above the window mean
	// and above 90% of the upper warning bound.
	trendVariation = 0.20
	trendNearMax   = 0.9
)

// TrendRaiser routes trend findings into the alert lifecycle.
type TrendRaiser interface {
	RaiseTrend(ctx context.Context, finding models.TrendFinding) (*models.Alert, error)
}

type TrendAnalyzer struct {
	sensors      repository.SensorRepository
	measurements repository.MeasurementRepository
	evaluator    *evaluator.Evaluator
	alerts       TrendRaiser
	clock        clock.Clock
	window       time.Duration
	logger       *zap.Logger
}

func NewTrendAnalyzer(
	sensors repository.SensorRepository,
	measurements repository.MeasurementRepository,
	eval *evaluator.Evaluator,
	alerts TrendRaiser,
	clk clock.Clock,
	window time.Duration,
	logger *zap.Logger,
) *TrendAnalyzer {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &TrendAnalyzer{
		sensors:      sensors,
		measurements: measurements,
		evaluator:    eval,
		alerts:       alerts,
		clock:        clk,
		window:       window,
		logger:       logger,
	}
}

// AnalyzeTrend inspects the trailing window of sensor's readings. A zero
// window uses the analyzer's default.
func (a *TrendAnalyzer) AnalyzeTrend(ctx context.Context, sensor *models.Sensor, window time.Duration) ([]models.TrendFinding, error) {
	return a.analyzeAt(ctx, sensor, window, a.clock.Now())
}

func (a *TrendAnalyzer) analyzeAt(ctx context.Context, sensor *models.Sensor, window time.Duration, now time.Time) ([]models.TrendFinding, error) {
	if window <= 0 {
		window = a.window
	}
	profile, monitored := a.evaluator.EffectiveProfile(sensor)
	if !monitored {
		return nil, nil
	}

	from := now.Add(-window)
	samples, err := a.measurements.ListMeasurements(ctx, models.MeasurementFilter{
		SensorID: sensor.ID,
		From:     &from,
		To:       &now,
	})
	if err != nil {
		return nil, err
	}
	if len(samples) < 2 {
		return nil, nil
	}

	stats := summarize(samples)
	if stats.mean == 0 {
		return nil, nil
	}
	variation := (stats.latest - stats.mean) / math.Abs(stats.mean)
	if variation <= trendVariation || stats.latest <= profile.Max*trendNearMax {
		return nil, nil
	}

	return []models.TrendFinding{{
		Sensor:    sensor,
		Latest:    stats.latest,
		Mean:      stats.mean,
		StdDev:    stats.stddev,
		Variation: variation,
		Samples:   len(samples),
		Window:    window,
		UpperMax:  profile.Max,
	}}, nil
}

type windowStats struct {
	mean   float64
	stddev float64
	latest float64
}

// summarize computes mean, population standard deviation and the value with
// the greatest measured_at.
func summarize(samples []*models.Measurement) windowStats {
	var sum float64
	latest := samples[0]
	for _, m := range samples {
		sum += m.Value
		if !m.MeasuredAt.Before(latest.MeasuredAt) {
			latest = m
		}
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, m := range samples {
		d := m.Value - mean
		sq += d * d
	}
	return windowStats{
		mean:   mean,
		stddev: math.Sqrt(sq / float64(len(samples))),
		latest: latest.Value,
	}
}

// Sweep analyses every active sensor and raises alerts for findings.
func (a *TrendAnalyzer) Sweep(ctx context.Context, now time.Time) ([]*models.Alert, error) {
	sensors, err := a.sensors.ListActiveSensors(ctx)
	if err != nil {
		return nil, err
	}

	var (
		created []*models.Alert
		errs    []error
	)
	for _, s := range sensors {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		findings, err := a.analyzeAt(ctx, s, a.window, now)
		if err != nil {
			a.logger.Error("Trend analysis failed", zap.String("sensor_id", s.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		for _, f := range findings {
			alert, err := a.alerts.RaiseTrend(ctx, f)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if alert != nil {
				created = append(created, alert)
			}
		}
	}
	if len(created) > 0 {
		a.logger.Info("Trend alerts raised", zap.Int("count", len(created)))
	}
	return created, errors.Join(errs...)
}
