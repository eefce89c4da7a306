package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

// PostgresSensorRepository reads sensors joined with station and parcel.
type PostgresSensorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresSensorRepository(db *sql.DB, logger *zap.Logger) *PostgresSensorRepository {
	return &PostgresSensorRepository{db: db, logger: logger}
}

var _ SensorRepository = (*PostgresSensorRepository)(nil)

const sensorSelect = `
	SELECT
		c.id::text,
		c.type,
		c.station_id::text,
		s.name,
		s.parcel_id::text,
		p.name,
		p.owner_id::text,
		c.threshold,
		c.status,
		c.last_measurement_at
	FROM sensors c
	JOIN stations s ON c.station_id = s.id
	JOIN parcels p ON s.parcel_id = p.id
`

func (r *PostgresSensorRepository) GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error) {
	row := r.db.QueryRowContext(ctx, sensorSelect+` WHERE c.id = $1`, sensorID)
	sensor, err := scanSensor(row)
	if err != nil {
		return nil, lookupErr("get sensor", "sensor", sensorID, err)
	}
	return sensor, nil
}

func (r *PostgresSensorRepository) ListActiveSensors(ctx context.Context) ([]*models.Sensor, error) {
	rows, err := r.db.QueryContext(ctx, sensorSelect+` WHERE c.status = 'active' ORDER BY c.id`)
	if err != nil {
		return nil, storageErr("list active sensors", err)
	}
	defer rows.Close()

	var sensors []*models.Sensor
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, storageErr("scan sensor", err)
		}
		sensors = append(sensors, sensor)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate sensors", err)
	}
	return sensors, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSensor(row rowScanner) (*models.Sensor, error) {
	var (
		s         models.Sensor
		sensorTyp string
		status    string
		threshold []byte
		lastAt    sql.NullTime
	)
	if err := row.Scan(
		&s.ID, &sensorTyp, &s.StationID, &s.StationName,
		&s.ParcelID, &s.ParcelName, &s.OwnerID,
		&threshold, &status, &lastAt,
	); err != nil {
		return nil, err
	}
	s.Type = models.SensorType(sensorTyp)
	s.Status = models.SensorStatus(status)
	if len(threshold) > 0 && string(threshold) != "null" {
		var o models.ThresholdOverride
		if err := json.Unmarshal(threshold, &o); err != nil {
			return nil, fmt.Errorf("decode threshold for sensor %s: %w", s.ID, err)
		}
		s.Threshold = &o
	}
	if lastAt.Valid {
		t := lastAt.Time
		s.LastMeasurementAt = &t
	}
	return &s, nil
}
