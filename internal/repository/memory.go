package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agrismart-monitor/internal/models"
)

// MemoryStore implements every repository interface in process.
// Used when no database is configured and by service-level tests.
type MemoryStore struct {
	mu           sync.RWMutex
	sensors      map[string]models.Sensor
	measurements []models.Measurement
	alerts       map[string]models.Alert
	users        map[string]models.Recipient
	parcelOwners map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sensors:      map[string]models.Sensor{},
		alerts:       map[string]models.Alert{},
		users:        map[string]models.Recipient{},
		parcelOwners: map[string]string{},
	}
}

var (
	_ SensorRepository      = (*MemoryStore)(nil)
	_ MeasurementRepository = (*MemoryStore)(nil)
	_ AlertRepository       = (*MemoryStore)(nil)
	_ UserRepository        = (*MemoryStore)(nil)
)

// PutSensor registers a sensor and its parcel owner.
func (m *MemoryStore) PutSensor(s models.Sensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sensors[s.ID] = s
	if s.ParcelID != "" && s.OwnerID != "" {
		m.parcelOwners[s.ParcelID] = s.OwnerID
	}
}

func (m *MemoryStore) PutRecipient(r models.Recipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[r.UserID] = r
}

func (m *MemoryStore) PutParcelOwner(parcelID, ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parcelOwners[parcelID] = ownerID
}

// Alerts returns a snapshot of stored alerts ordered by creation time.
func (m *MemoryStore) Alerts() []models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryStore) GetSensor(_ context.Context, sensorID string) (*models.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sensors[sensorID]
	if !ok {
		return nil, fmt.Errorf("sensor %s: %w", sensorID, models.ErrNotFound)
	}
	return &s, nil
}

func (m *MemoryStore) ListActiveSensors(_ context.Context) ([]*models.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		if s.Status != models.SensorActive {
			continue
		}
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) InsertMeasurements(_ context.Context, measurements []*models.Measurement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meas := range measurements {
		m.measurements = append(m.measurements, *meas)
		s, ok := m.sensors[meas.SensorID]
		if !ok {
			continue
		}
		if s.LastMeasurementAt == nil || meas.MeasuredAt.After(*s.LastMeasurementAt) {
			t := meas.MeasuredAt
			s.LastMeasurementAt = &t
			m.sensors[s.ID] = s
		}
	}
	return nil
}

func (m *MemoryStore) ListMeasurements(_ context.Context, filter models.MeasurementFilter) ([]*models.Measurement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Measurement
	for _, meas := range m.measurements {
		if filter.SensorID != "" && meas.SensorID != filter.SensorID {
			continue
		}
		if filter.ParcelID != "" && meas.ParcelID != filter.ParcelID {
			continue
		}
		if filter.From != nil && meas.MeasuredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && meas.MeasuredAt.After(*filter.To) {
			continue
		}
		meas := meas
		out = append(out, &meas)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MeasuredAt.Before(out[j].MeasuredAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) LatestMeasurements(_ context.Context, sensorIDs []string) (map[string]*models.Measurement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]bool, len(sensorIDs))
	for _, id := range sensorIDs {
		want[id] = true
	}
	out := make(map[string]*models.Measurement, len(sensorIDs))
	for _, meas := range m.measurements {
		if !want[meas.SensorID] {
			continue
		}
		cur, ok := out[meas.SensorID]
		if ok && (meas.MeasuredAt.Before(cur.MeasuredAt) ||
			(meas.MeasuredAt.Equal(cur.MeasuredAt) && !meas.CreatedAt.After(cur.CreatedAt))) {
			continue
		}
		meas := meas
		out[meas.SensorID] = &meas
	}
	return out, nil
}

func (m *MemoryStore) CreateAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = *alert
	return nil
}

func (m *MemoryStore) CreateIfNoRecent(_ context.Context, alert *models.Alert, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.Status == models.AlertResolved || a.DedupKey != alert.DedupKey {
			continue
		}
		if !sameSensor(a.SensorID, alert.SensorID) {
			continue
		}
		if a.CreatedAt.After(since) {
			return false, nil
		}
	}
	m.alerts[alert.ID] = *alert
	return true, nil
}

func (m *MemoryStore) GetAlert(_ context.Context, alertID string) (*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", alertID, models.ErrNotFound)
	}
	return &a, nil
}

func (m *MemoryStore) AcknowledgeAlert(_ context.Context, alertID, actor string, at time.Time) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", alertID, models.ErrNotFound)
	}
	if a.Status == models.AlertNew {
		a.Status = models.AlertAcknowledged
		a.AcknowledgedAt = &at
		a.AcknowledgedBy = &actor
		m.alerts[alertID] = a
	}
	return &a, nil
}

func (m *MemoryStore) ResolveAlert(_ context.Context, alertID, actor string, notes *string, at time.Time) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", alertID, models.ErrNotFound)
	}
	if a.Status != models.AlertResolved {
		a.Status = models.AlertResolved
		a.ResolvedAt = &at
		a.ResolvedBy = &actor
		a.ResolutionNotes = notes
		m.alerts[alertID] = a
	}
	return &a, nil
}

func (m *MemoryStore) GetRecipient(_ context.Context, userID string) (*models.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return &r, nil
}

func (m *MemoryStore) GetParcelOwner(_ context.Context, parcelID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.parcelOwners[parcelID]
	if !ok {
		return "", fmt.Errorf("parcel %s: %w", parcelID, models.ErrNotFound)
	}
	return owner, nil
}

func sameSensor(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
