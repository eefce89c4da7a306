package models

import "time"

// AlertCategory says what produced an alert.
type AlertCategory string

const (
	CategorySensorThreshold AlertCategory = "sensor_threshold"
	CategorySensorOffline   AlertCategory = "sensor_offline"
	CategoryTrend           AlertCategory = "trend"
	CategoryManual          AlertCategory = "manual"
	CategoryTest            AlertCategory = "test"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// AlertStatus is the lifecycle state: new -> (acknowledged) -> resolved.
type AlertStatus string

const (
	AlertNew          AlertStatus = "new"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// AlertSource says whether an alert was raised by the system or a person.
type AlertSource string

const (
	SourceAutomatic AlertSource = "automatic"
	SourceManual    AlertSource = "manual"
	SourceTest      AlertSource = "test"
)

// Alert corresponds to the alerts table.
type Alert struct {
	ID              string        `json:"id" db:"id"`
	UserID          string        `json:"user_id" db:"user_id"`
	ParcelID        *string       `json:"parcel_id,omitempty" db:"parcel_id"`
	SensorID        *string       `json:"sensor_id,omitempty" db:"sensor_id"`
	Category        AlertCategory `json:"category" db:"category"`
	Severity        Severity      `json:"severity" db:"severity"`
	Title           string        `json:"title" db:"title"`
	Message         string        `json:"message" db:"message"`
	Status          AlertStatus   `json:"status" db:"status"`
	Source          AlertSource   `json:"source" db:"source"`
	DedupKey        string        `json:"dedup_key,omitempty" db:"dedup_key"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	AcknowledgedAt  *time.Time    `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy  *string       `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy      *string       `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNotes *string       `json:"resolution_notes,omitempty" db:"resolution_notes"`
}

// Resolved reports whether the alert reached its terminal state.
func (a *Alert) Resolved() bool {
	return a.Status == AlertResolved
}
