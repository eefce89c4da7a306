package sweep

import (
	"context"

	"agrismart-monitor/internal/clock"
	"agrismart-monitor/internal/models"
	"agrismart-monitor/internal/repository"
)

// StatusReader answers live sensor state with the same staleness rule the
// offline sweep uses.
type StatusReader struct {
	sensors      repository.SensorRepository
	measurements repository.MeasurementRepository
	offline      *OfflineDetector
	clock        clock.Clock
}

func NewStatusReader(sensors repository.SensorRepository, measurements repository.MeasurementRepository, offline *OfflineDetector, clk clock.Clock) *StatusReader {
	if clk == nil {
		clk = clock.System{}
	}
	return &StatusReader{sensors: sensors, measurements: measurements, offline: offline, clock: clk}
}

func (r *StatusReader) SensorStatus(ctx context.Context, sensorID string) (*models.SensorSnapshot, error) {
	sensor, err := r.sensors.GetSensor(ctx, sensorID)
	if err != nil {
		return nil, err
	}
	latest, err := r.measurements.LatestMeasurements(ctx, []string{sensor.ID})
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	snap := &models.SensorSnapshot{
		SensorID:          sensor.ID,
		Type:              sensor.Type,
		StationID:         sensor.StationID,
		StationName:       sensor.StationName,
		ParcelID:          sensor.ParcelID,
		Status:            sensor.Status,
		LastMeasurementAt: sensor.LastMeasurementAt,
		Latest:            latest[sensor.ID],
		CheckedAt:         now,
	}
	last := sensor.LastMeasurementAt
	if last == nil && snap.Latest != nil {
		last = &snap.Latest.MeasuredAt
	}
	snap.Online = !r.offline.Stale(last, now)
	return snap, nil
}
