package models

import "time"

// SensorType is the fixed physical quantity a sensor measures.
type SensorType string

const (
	SensorSoilMoisture   SensorType = "soil_moisture"
	SensorAirTemperature SensorType = "air_temperature"
	SensorAirHumidity    SensorType = "air_humidity"
	SensorLight          SensorType = "light"
	SensorRainfall       SensorType = "rainfall"
	SensorSoilPH         SensorType = "soil_ph"
	SensorWaterLevel     SensorType = "water_level"
)

// Valid reports whether t is one of the known sensor types.
func (t SensorType) Valid() bool {
	switch t {
	case SensorSoilMoisture, SensorAirTemperature, SensorAirHumidity,
		SensorLight, SensorRainfall, SensorSoilPH, SensorWaterLevel:
		return true
	}
	return false
}

// SensorStatus is managed outside this service; only active sensors are swept.
type SensorStatus string

const (
	SensorActive      SensorStatus = "active"
	SensorInactive    SensorStatus = "inactive"
	SensorMaintenance SensorStatus = "maintenance"
)

// Sensor is a sensor row joined with its station and parcel (sensors -> stations -> parcels).
type Sensor struct {
	ID                string             `json:"id" db:"id"`
	Type              SensorType         `json:"type" db:"type"`
	StationID         string             `json:"station_id" db:"station_id"`
	StationName       string             `json:"station_name" db:"station_name"`
	ParcelID          string             `json:"parcel_id" db:"parcel_id"`
	ParcelName        string             `json:"parcel_name" db:"parcel_name"`
	OwnerID           string             `json:"owner_id" db:"owner_id"`
	Threshold         *ThresholdOverride `json:"threshold,omitempty" db:"threshold"` // JSONB
	Status            SensorStatus       `json:"status" db:"status"`
	LastMeasurementAt *time.Time         `json:"last_measurement_at,omitempty" db:"last_measurement_at"`
}

var sensorLabels = map[SensorType]string{
	SensorAirTemperature: "Température",
	SensorSoilMoisture:   "Humidité du sol",
	SensorAirHumidity:    "Humidité de l'air",
	SensorLight:          "Luminosité",
	SensorRainfall:       "Pluviométrie",
	SensorSoilPH:         "pH du sol",
	SensorWaterLevel:     "Niveau d'eau",
}

var sensorUnits = map[SensorType]string{
	SensorAirTemperature: "°C",
	SensorSoilMoisture:   "%",
	SensorAirHumidity:    "%",
	SensorLight:          "lux",
	SensorRainfall:       "mm",
	SensorSoilPH:         "",
	SensorWaterLevel:     "cm",
}

// Label is the display name used in alert texts.
func (t SensorType) Label() string {
	if l, ok := sensorLabels[t]; ok {
		return l
	}
	return string(t)
}

// Unit is the default measurement unit for the type.
func (t SensorType) Unit() string {
	return sensorUnits[t]
}
