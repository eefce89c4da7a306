// Package sweep runs the periodic full scans: offline detection and trend analysis.
package sweep

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
	"agrismart-monitor/internal/repository"
)

const DefaultStaleAfter = 30 * time.Minute

// OfflineRaiser creates deduplicated offline alerts.
type OfflineRaiser interface {
	RaiseOffline(ctx context.Context, sensor *models.Sensor, now time.Time) (*models.Alert, error)
}

// OfflineDetector flags active sensors that stopped reporting.
type OfflineDetector struct {
	sensors    repository.SensorRepository
	alerts     OfflineRaiser
	staleAfter time.Duration
	logger     *zap.Logger
}

func NewOfflineDetector(sensors repository.SensorRepository, alerts OfflineRaiser, staleAfter time.Duration, logger *zap.Logger) *OfflineDetector {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &OfflineDetector{sensors: sensors, alerts: alerts, staleAfter: staleAfter, logger: logger}
}

// Stale reports whether a sensor with the given last measurement is silent at now.
func (d *OfflineDetector) Stale(last *time.Time, now time.Time) bool {
	return last == nil || now.Sub(*last) > d.staleAfter
}

// SweepOffline raises an offline alert for every stale active sensor and
// returns the alerts that were created. Suppressed sensors yield nothing.
// The context is checked between sensors.
func (d *OfflineDetector) SweepOffline(ctx context.Context, now time.Time) ([]*models.Alert, error) {
	sensors, err := d.sensors.ListActiveSensors(ctx)
	if err != nil {
		return nil, err
	}

	var (
		created []*models.Alert
		errs    []error
		stale   int
	)
	for _, s := range sensors {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if !d.Stale(s.LastMeasurementAt, now) {
			continue
		}
		stale++
		alert, err := d.alerts.RaiseOffline(ctx, s, now)
		if err != nil {
			d.logger.Error("Failed to raise offline alert",
				zap.String("sensor_id", s.ID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if alert != nil {
			created = append(created, alert)
		}
	}

	if stale > 0 {
		d.logger.Info("Offline sensors detected",
			zap.Int("stale", stale),
			zap.Int("alerts_created", len(created)),
		)
	}
	return created, errors.Join(errs...)
}
