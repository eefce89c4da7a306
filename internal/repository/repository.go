package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"agrismart-monitor/internal/models"
)

// SensorRepository resolves sensors together with their station and parcel chain.
type SensorRepository interface {
	GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error)
	ListActiveSensors(ctx context.Context) ([]*models.Sensor, error)
}

// MeasurementRepository stores immutable measurements.
type MeasurementRepository interface {
	// InsertMeasurements writes the group atomically and advances each sensor's
	// last_measurement_at to the greatest measured_at seen.
	InsertMeasurements(ctx context.Context, measurements []*models.Measurement) error
	ListMeasurements(ctx context.Context, filter models.MeasurementFilter) ([]*models.Measurement, error)
	// LatestMeasurements returns, per sensor, the reading with the greatest
	// measured_at. Sensors without readings are absent from the map.
	LatestMeasurements(ctx context.Context, sensorIDs []string) (map[string]*models.Measurement, error)
}

// AlertRepository stores alerts and owns the suppression check.
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	// CreateIfNoRecent inserts alert unless an unresolved alert with the same
	// sensor and dedup key was created after since. Returns false when suppressed.
	CreateIfNoRecent(ctx context.Context, alert *models.Alert, since time.Time) (bool, error)
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)
	AcknowledgeAlert(ctx context.Context, alertID, actor string, at time.Time) (*models.Alert, error)
	ResolveAlert(ctx context.Context, alertID, actor string, notes *string, at time.Time) (*models.Alert, error)
}

// UserRepository exposes recipients and parcel ownership.
type UserRepository interface {
	GetRecipient(ctx context.Context, userID string) (*models.Recipient, error)
	GetParcelOwner(ctx context.Context, parcelID string) (string, error)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
}

// invalidTextRepresentation is raised when a parameter cannot be parsed as
// its column type, for example a malformed uuid.
const invalidTextRepresentation pq.ErrorCode = "22P02"

func isInvalidText(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation
}

// lookupErr maps a single-row lookup failure. A missing row and an id the
// column type rejects both mean the entity does not exist.
func lookupErr(op, entity, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return fmt.Errorf("%s %s: %w", entity, id, models.ErrNotFound)
	}
	return storageErr(op, err)
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
