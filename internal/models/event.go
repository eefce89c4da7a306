package models

import "time"

// EventType names a live event.
type EventType string

const (
	EventMeasurementNew EventType = "measurement.new"
	EventAlertNew       EventType = "alert.new"
)

// Event is published to live subscribers with no delivery guarantee.
type Event struct {
	Type       EventType   `json:"type"`
	UserID     string      `json:"user_id,omitempty"`
	ParcelID   string      `json:"parcel_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}
