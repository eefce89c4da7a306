package models

import "time"

// Measurement is an immutable reading. Station and parcel are denormalised at insert time.
type Measurement struct {
	ID         string    `json:"id" db:"id"`
	SensorID   string    `json:"sensor_id" db:"sensor_id"`
	StationID  string    `json:"station_id" db:"station_id"`
	ParcelID   string    `json:"parcel_id" db:"parcel_id"`
	Value      float64   `json:"value" db:"value"`
	Unit       string    `json:"unit" db:"unit"`
	MeasuredAt time.Time `json:"measured_at" db:"measured_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// MeasurementFilter selects measurements for range queries.
type MeasurementFilter struct {
	SensorID string
	ParcelID string
	From     *time.Time
	To       *time.Time
	Limit    int
}

// SensorSnapshot is the dashboard view of one sensor. Online is true while the
// last reading is within the staleness window; Latest is the reading with the
// greatest measured_at, whatever order readings arrived in.
type SensorSnapshot struct {
	SensorID          string       `json:"sensor_id"`
	Type              SensorType   `json:"type"`
	StationID         string       `json:"station_id"`
	StationName       string       `json:"station_name"`
	ParcelID          string       `json:"parcel_id"`
	Status            SensorStatus `json:"status"`
	Online            bool         `json:"online"`
	LastMeasurementAt *time.Time   `json:"last_measurement_at,omitempty"`
	Latest            *Measurement `json:"latest,omitempty"`
	CheckedAt         time.Time    `json:"checked_at"`
}
