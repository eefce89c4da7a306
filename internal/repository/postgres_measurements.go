package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

// PostgresMeasurementRepository stores measurements and maintains sensors.last_measurement_at.
type PostgresMeasurementRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresMeasurementRepository(db *sql.DB, logger *zap.Logger) *PostgresMeasurementRepository {
	return &PostgresMeasurementRepository{db: db, logger: logger}
}

var _ MeasurementRepository = (*PostgresMeasurementRepository)(nil)

func (r *PostgresMeasurementRepository) InsertMeasurements(ctx context.Context, measurements []*models.Measurement) error {
	if len(measurements) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	latest := make(map[string]time.Time)
	for _, m := range measurements {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO measurements (id, sensor_id, station_id, parcel_id, value, unit, measured_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, m.ID, m.SensorID, m.StationID, m.ParcelID, m.Value, m.Unit, m.MeasuredAt, m.CreatedAt)
		if err != nil {
			return storageErr("insert measurement", err)
		}
		if cur, ok := latest[m.SensorID]; !ok || m.MeasuredAt.After(cur) {
			latest[m.SensorID] = m.MeasuredAt
		}
	}

	sensorIDs := make([]string, 0, len(latest))
	for id := range latest {
		sensorIDs = append(sensorIDs, id)
	}
	sort.Strings(sensorIDs)

	// GREATEST ignores NULL, so a sensor's first measurement sets the column.
	for _, id := range sensorIDs {
		_, err := tx.ExecContext(ctx, `
			UPDATE sensors
			SET last_measurement_at = GREATEST(last_measurement_at, $2)
			WHERE id = $1
		`, id, latest[id])
		if err != nil {
			return storageErr("update last_measurement_at", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit measurements", err)
	}
	return nil
}

func (r *PostgresMeasurementRepository) ListMeasurements(ctx context.Context, filter models.MeasurementFilter) ([]*models.Measurement, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.SensorID != "" {
		add("sensor_id = $%d", filter.SensorID)
	}
	if filter.ParcelID != "" {
		add("parcel_id = $%d", filter.ParcelID)
	}
	if filter.From != nil {
		add("measured_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("measured_at <= $%d", *filter.To)
	}

	query := `
		SELECT id::text, sensor_id::text, station_id::text, parcel_id::text, value, unit, measured_at, created_at
		FROM measurements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY measured_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list measurements", err)
	}
	defer rows.Close()

	var out []*models.Measurement
	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(&m.ID, &m.SensorID, &m.StationID, &m.ParcelID, &m.Value, &m.Unit, &m.MeasuredAt, &m.CreatedAt); err != nil {
			return nil, storageErr("scan measurement", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate measurements", err)
	}
	return out, nil
}

func (r *PostgresMeasurementRepository) LatestMeasurements(ctx context.Context, sensorIDs []string) (map[string]*models.Measurement, error) {
	out := make(map[string]*models.Measurement, len(sensorIDs))
	if len(sensorIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (sensor_id)
			id::text, sensor_id::text, station_id::text, parcel_id::text, value, unit, measured_at, created_at
		FROM measurements
		WHERE sensor_id = ANY($1::uuid[])
		ORDER BY sensor_id, measured_at DESC, created_at DESC
	`, pq.Array(sensorIDs))
	if err != nil {
		return nil, storageErr("latest measurements", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(&m.ID, &m.SensorID, &m.StationID, &m.ParcelID, &m.Value, &m.Unit, &m.MeasuredAt, &m.CreatedAt); err != nil {
			return nil, storageErr("scan measurement", err)
		}
		out[m.SensorID] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate measurements", err)
	}
	return out, nil
}
