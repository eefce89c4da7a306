// Package alerting owns the alert lifecycle: suppression, creation,
// notification and the new -> acknowledged -> resolved transitions.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agrismart-monitor/internal/clock"
	"agrismart-monitor/internal/evaluator"
	"agrismart-monitor/internal/events"
	"agrismart-monitor/internal/lock"
	"agrismart-monitor/internal/models"
	"agrismart-monitor/internal/notify"
	"agrismart-monitor/internal/repository"
)

const (
	DefaultThresholdWindow = time.Hour
	DefaultOfflineWindow   = 2 * time.Hour
	DefaultTrendWindow     = 6 * time.Hour

	offlineKey = "offline"
	trendKey   = "trend"
)

// ThresholdKey is the dedup key for a threshold breach of the given severity.
func ThresholdKey(sev models.Severity) string {
	return "threshold:" + string(sev)
}

// Dispatcher delivers a created alert. Implemented by notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert) notify.Results
}

// ParcelOwners resolves the owner of a parcel for manual alerts.
type ParcelOwners interface {
	GetParcelOwner(ctx context.Context, parcelID string) (string, error)
}

// Windows are the suppression windows per dedup family.
type Windows struct {
	Threshold time.Duration
	Offline   time.Duration
	Trend     time.Duration
}

func (w Windows) withDefaults() Windows {
	if w.Threshold <= 0 {
		w.Threshold = DefaultThresholdWindow
	}
	if w.Offline <= 0 {
		w.Offline = DefaultOfflineWindow
	}
	if w.Trend <= 0 {
		w.Trend = DefaultTrendWindow
	}
	return w
}

type Options struct {
	Alerts     repository.AlertRepository
	Owners     ParcelOwners
	Locker     lock.Locker
	Dispatcher Dispatcher
	Publisher  events.Publisher
	Clock      clock.Clock
	Windows    Windows
	Logger     *zap.Logger
}

type Manager struct {
	alerts     repository.AlertRepository
	owners     ParcelOwners
	locker     lock.Locker
	dispatcher Dispatcher
	publisher  events.Publisher
	clock      clock.Clock
	windows    Windows
	logger     *zap.Logger
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		alerts:     opts.Alerts,
		owners:     opts.Owners,
		locker:     opts.Locker,
		dispatcher: opts.Dispatcher,
		publisher:  opts.Publisher,
		clock:      opts.Clock,
		windows:    opts.Windows.withDefaults(),
		logger:     opts.Logger,
	}
	if m.locker == nil {
		m.locker = lock.NewKeyMutex()
	}
	if m.publisher == nil {
		m.publisher = events.Nop{}
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// RaiseIfNeeded creates a threshold alert for a breaching verdict. It returns
// nil without error when the zone is normal or an equivalent alert is still
// open inside the threshold window.
func (m *Manager) RaiseIfNeeded(ctx context.Context, sensor *models.Sensor, verdict evaluator.Verdict, value float64) (*models.Alert, error) {
	if !verdict.Breach() {
		return nil, nil
	}
	alert := m.newSensorAlert(sensor, models.CategorySensorThreshold, verdict.Severity, ThresholdKey(verdict.Severity))
	alert.Title = thresholdTitle(sensor.Type, verdict.Severity)
	alert.Message = thresholdMessage(sensor.Type, value, verdict.Severity, sensor.StationName)
	return m.raiseDeduplicated(ctx, alert, m.windows.Threshold)
}

// RaiseOffline creates an offline alert for a silent sensor.
func (m *Manager) RaiseOffline(ctx context.Context, sensor *models.Sensor, now time.Time) (*models.Alert, error) {
	alert := m.newSensorAlert(sensor, models.CategorySensorOffline, models.SeverityWarning, offlineKey)
	silent := 0
	if sensor.LastMeasurementAt != nil {
		silent = int(now.Sub(*sensor.LastMeasurementAt).Minutes())
	}
	alert.Title = offlineTitle(sensor.Type)
	alert.Message = offlineMessage(sensor, silent)
	return m.raiseDeduplicated(ctx, alert, m.windows.Offline)
}

// RaiseTrend routes a trend finding through the same suppression path.
func (m *Manager) RaiseTrend(ctx context.Context, finding models.TrendFinding) (*models.Alert, error) {
	if finding.Sensor == nil {
		return nil, fmt.Errorf("trend finding without sensor: %w", models.ErrInvalidInput)
	}
	alert := m.newSensorAlert(finding.Sensor, models.CategoryTrend, models.SeverityWarning, trendKey)
	alert.Title = trendTitle(finding.Sensor.Type)
	alert.Message = trendMessage(finding)
	return m.raiseDeduplicated(ctx, alert, m.windows.Trend)
}

// ManualAlert is an operator-authored alert.
type ManualAlert struct {
	ActorID    string
	Recipients []string
	ParcelID   *string
	SensorID   *string
	Severity   models.Severity
	Title      string
	Message    string
}

// RaiseManual creates one alert per recipient. Without explicit recipients the
// parcel owner is used, falling back to the actor.
func (m *Manager) RaiseManual(ctx context.Context, req ManualAlert) ([]*models.Alert, error) {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("title and message are required: %w", models.ErrInvalidInput)
	}
	if req.Severity == "" {
		req.Severity = models.SeverityInfo
	}
	if !req.Severity.Valid() {
		return nil, fmt.Errorf("unknown severity %q: %w", req.Severity, models.ErrInvalidInput)
	}

	recipients, err := m.manualRecipients(ctx, req)
	if err != nil {
		return nil, err
	}

	created := make([]*models.Alert, 0, len(recipients))
	for _, userID := range recipients {
		alert := &models.Alert{
			ID:        uuid.NewString(),
			UserID:    userID,
			ParcelID:  req.ParcelID,
			SensorID:  req.SensorID,
			Category:  models.CategoryManual,
			Severity:  req.Severity,
			Title:     req.Title,
			Message:   req.Message,
			Status:    models.AlertNew,
			Source:    models.SourceManual,
			CreatedAt: m.clock.Now(),
		}
		if err := m.alerts.CreateAlert(ctx, alert); err != nil {
			return created, err
		}
		m.logger.Info("Manual alert created",
			zap.String("alert_id", alert.ID),
			zap.String("created_by", req.ActorID),
			zap.String("user_id", userID),
		)
		m.deliver(ctx, alert)
		created = append(created, alert)
	}
	return created, nil
}

func (m *Manager) manualRecipients(ctx context.Context, req ManualAlert) ([]string, error) {
	if len(req.Recipients) > 0 {
		return req.Recipients, nil
	}
	if req.ParcelID != nil && m.owners != nil {
		owner, err := m.owners.GetParcelOwner(ctx, *req.ParcelID)
		switch {
		case err == nil:
			return []string{owner}, nil
		case !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
	}
	if req.ActorID == "" {
		return nil, fmt.Errorf("no recipient for manual alert: %w", models.ErrInvalidInput)
	}
	return []string{req.ActorID}, nil
}

// SendTest creates and delivers a test alert to userID.
func (m *Manager) SendTest(ctx context.Context, userID string) (*models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", models.ErrInvalidInput)
	}
	alert := &models.Alert{
		ID:        uuid.NewString(),
		UserID:    userID,
		Category:  models.CategoryTest,
		Severity:  models.SeverityInfo,
		Title:     testTitle,
		Message:   testMessage,
		Status:    models.AlertNew,
		Source:    models.SourceTest,
		CreatedAt: m.clock.Now(),
	}
	if err := m.alerts.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}
	m.deliver(ctx, alert)
	return alert, nil
}

func (m *Manager) Get(ctx context.Context, alertID string) (*models.Alert, error) {
	return m.alerts.GetAlert(ctx, alertID)
}

// Acknowledge moves a new alert to acknowledged. Repeated calls and calls on
// resolved alerts return the stored alert unchanged.
func (m *Manager) Acknowledge(ctx context.Context, alertID, actor string) (*models.Alert, error) {
	alert, err := m.alerts.AcknowledgeAlert(ctx, alertID, actor, m.clock.Now())
	if err != nil {
		return nil, err
	}
	m.logger.Info("Alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("actor", actor),
		zap.String("status", string(alert.Status)),
	)
	return alert, nil
}

// Resolve is terminal and idempotent: resolving twice keeps the first
// resolution's timestamp, actor and notes.
func (m *Manager) Resolve(ctx context.Context, alertID, actor string, notes *string) (*models.Alert, error) {
	alert, err := m.alerts.ResolveAlert(ctx, alertID, actor, notes, m.clock.Now())
	if err != nil {
		return nil, err
	}
	m.logger.Info("Alert resolved",
		zap.String("alert_id", alertID),
		zap.String("actor", actor),
	)
	return alert, nil
}

func (m *Manager) newSensorAlert(sensor *models.Sensor, cat models.AlertCategory, sev models.Severity, key string) *models.Alert {
	sensorID := sensor.ID
	alert := &models.Alert{
		ID:        uuid.NewString(),
		UserID:    sensor.OwnerID,
		SensorID:  &sensorID,
		Category:  cat,
		Severity:  sev,
		Status:    models.AlertNew,
		Source:    models.SourceAutomatic,
		DedupKey:  key,
		CreatedAt: m.clock.Now(),
	}
	if sensor.ParcelID != "" {
		parcelID := sensor.ParcelID
		alert.ParcelID = &parcelID
	}
	return alert
}

// raiseDeduplicated holds the (sensor, key) lock across the recent-alert check
// and the insert. Notification happens after the lock is released.
func (m *Manager) raiseDeduplicated(ctx context.Context, alert *models.Alert, window time.Duration) (*models.Alert, error) {
	key := *alert.SensorID + "|" + alert.DedupKey
	release, err := m.locker.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquire suppression lock %s: %w", key, err)
	}
	created, err := m.alerts.CreateIfNoRecent(ctx, alert, alert.CreatedAt.Add(-window))
	release()
	if err != nil {
		return nil, err
	}
	if !created {
		m.logger.Debug("Alert suppressed",
			zap.String("sensor_id", *alert.SensorID),
			zap.String("dedup_key", alert.DedupKey),
		)
		return nil, nil
	}

	m.logger.Info("Automatic alert created",
		zap.String("alert_id", alert.ID),
		zap.String("sensor_id", *alert.SensorID),
		zap.String("category", string(alert.Category)),
		zap.String("severity", string(alert.Severity)),
	)
	m.deliver(ctx, alert)
	return alert, nil
}

func (m *Manager) deliver(ctx context.Context, alert *models.Alert) {
	if m.dispatcher != nil {
		m.dispatcher.Dispatch(ctx, alert)
	}
	parcelID := ""
	if alert.ParcelID != nil {
		parcelID = *alert.ParcelID
	}
	events.Emit(ctx, m.publisher, models.Event{
		Type:       models.EventAlertNew,
		UserID:     alert.UserID,
		ParcelID:   parcelID,
		OccurredAt: alert.CreatedAt,
		Payload:    alert,
	}, m.logger)
}
