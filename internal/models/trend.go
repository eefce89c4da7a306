package models

import "time"

// TrendFinding is an early-warning signal: the latest reading is well above the
// window mean and close to the upper warning bound.
type TrendFinding struct {
	Sensor    *Sensor       `json:"sensor"`
	Latest    float64       `json:"latest"`
	Mean      float64       `json:"mean"`
	StdDev    float64       `json:"std_dev"`
	Variation float64       `json:"variation"` // (latest-mean)/|mean|
	Samples   int           `json:"samples"`
	Window    time.Duration `json:"window"`
	UpperMax  float64       `json:"upper_max"`
}
