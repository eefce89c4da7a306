package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

// PostgresAlertRepository persists alerts.
type PostgresAlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresAlertRepository(db *sql.DB, logger *zap.Logger) *PostgresAlertRepository {
	return &PostgresAlertRepository{db: db, logger: logger}
}

var _ AlertRepository = (*PostgresAlertRepository)(nil)

const alertColumns = `
	id::text, user_id::text, parcel_id::text, sensor_id::text,
	category, severity, title, message, status, source, dedup_key,
	created_at, acknowledged_at, acknowledged_by::text,
	resolved_at, resolved_by::text, resolution_notes
`

const insertAlert = `
	INSERT INTO alerts (
		id, user_id, parcel_id, sensor_id, category, severity,
		title, message, status, source, dedup_key, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execInsertAlert(ctx context.Context, db execer, a *models.Alert) error {
	_, err := db.ExecContext(ctx, insertAlert,
		a.ID, a.UserID, nullString(a.ParcelID), nullString(a.SensorID),
		string(a.Category), string(a.Severity), a.Title, a.Message,
		string(a.Status), string(a.Source), a.DedupKey, a.CreatedAt,
	)
	return err
}

func (r *PostgresAlertRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if err := execInsertAlert(ctx, r.db, alert); err != nil {
		return storageErr("insert alert", err)
	}
	return nil
}

// CreateIfNoRecent serialises on the (sensor, dedup key) pair with a
// transaction-scoped advisory lock so concurrent writers on any node see each
// other's inserts.
func (r *PostgresAlertRepository) CreateIfNoRecent(ctx context.Context, alert *models.Alert, since time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	sensorID := ""
	if alert.SensorID != nil {
		sensorID = *alert.SensorID
	}
	lockKey := sensorID + "|" + alert.DedupKey
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return false, storageErr("acquire advisory lock", err)
	}

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE sensor_id = $1
			  AND dedup_key = $2
			  AND status <> 'resolved'
			  AND created_at > $3
		)
	`, sensorID, alert.DedupKey, since).Scan(&exists)
	if err != nil {
		return false, storageErr("check recent alert", err)
	}
	if exists {
		return false, nil
	}

	if err := execInsertAlert(ctx, tx, alert); err != nil {
		return false, storageErr("insert alert", err)
	}
	if err := tx.Commit(); err != nil {
		return false, storageErr("commit alert", err)
	}
	return true, nil
}

func (r *PostgresAlertRepository) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, alertID)
	alert, err := scanAlert(row)
	if err != nil {
		return nil, lookupErr("get alert", "alert", alertID, err)
	}
	return alert, nil
}

// AcknowledgeAlert only transitions alerts still in status new; any other
// state is returned as stored.
func (r *PostgresAlertRepository) AcknowledgeAlert(ctx context.Context, alertID, actor string, at time.Time) (*models.Alert, error) {
	if !isUUID(alertID) {
		return nil, fmt.Errorf("alert %s: %w", alertID, models.ErrNotFound)
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE alerts
		SET status = 'acknowledged', acknowledged_at = $2, acknowledged_by = $3
		WHERE id = $1 AND status = 'new'
		RETURNING `+alertColumns, alertID, at, actor)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r.GetAlert(ctx, alertID)
	}
	if isInvalidText(err) {
		return nil, fmt.Errorf("actor %s: %w", actor, models.ErrInvalidInput)
	}
	if err != nil {
		return nil, storageErr("acknowledge alert", err)
	}
	return alert, nil
}

// ResolveAlert is terminal; a second resolve returns the stored alert with
// its first resolution fields.
func (r *PostgresAlertRepository) ResolveAlert(ctx context.Context, alertID, actor string, notes *string, at time.Time) (*models.Alert, error) {
	if !isUUID(alertID) {
		return nil, fmt.Errorf("alert %s: %w", alertID, models.ErrNotFound)
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE alerts
		SET status = 'resolved', resolved_at = $2, resolved_by = $3, resolution_notes = $4
		WHERE id = $1 AND status <> 'resolved'
		RETURNING `+alertColumns, alertID, at, actor, nullString(notes))
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r.GetAlert(ctx, alertID)
	}
	if isInvalidText(err) {
		return nil, fmt.Errorf("actor %s: %w", actor, models.ErrInvalidInput)
	}
	if err != nil {
		return nil, storageErr("resolve alert", err)
	}
	return alert, nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a                  models.Alert
		category, severity string
		status, source     string
		parcelID, sensorID sql.NullString
		ackAt, resolvedAt  sql.NullTime
		ackBy, resolvedBy  sql.NullString
		resolutionNotes    sql.NullString
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &parcelID, &sensorID,
		&category, &severity, &a.Title, &a.Message, &status, &source, &a.DedupKey,
		&a.CreatedAt, &ackAt, &ackBy,
		&resolvedAt, &resolvedBy, &resolutionNotes,
	); err != nil {
		return nil, err
	}
	a.Category = models.AlertCategory(category)
	a.Severity = models.Severity(severity)
	a.Status = models.AlertStatus(status)
	a.Source = models.AlertSource(source)
	a.ParcelID = stringPtr(parcelID)
	a.SensorID = stringPtr(sensorID)
	a.AcknowledgedAt = timePtr(ackAt)
	a.AcknowledgedBy = stringPtr(ackBy)
	a.ResolvedAt = timePtr(resolvedAt)
	a.ResolvedBy = stringPtr(resolvedBy)
	a.ResolutionNotes = stringPtr(resolutionNotes)
	return &a, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
