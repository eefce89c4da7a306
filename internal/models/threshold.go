package models

// Zone is the classification of a reading against a threshold profile.
type Zone string

const (
	ZoneNormal   Zone = "normal"
	ZoneWarning  Zone = "warning"
	ZoneCritical Zone = "critical"
)

// ThresholdProfile is the four-bound set used to classify a reading.
// Expected ordering: CriticalMin < Min < Max < CriticalMax.
type ThresholdProfile struct {
	Min         float64 `json:"min" yaml:"min"`
	Max         float64 `json:"max" yaml:"max"`
	CriticalMin float64 `json:"critical_min" yaml:"critical_min"`
	CriticalMax float64 `json:"critical_max" yaml:"critical_max"`
}

// ThresholdOverride is a per-sensor override; nil fields keep the type default.
type ThresholdOverride struct {
	Min         *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	CriticalMin *float64 `json:"critical_min,omitempty" yaml:"critical_min,omitempty"`
	CriticalMax *float64 `json:"critical_max,omitempty" yaml:"critical_max,omitempty"`
}

// Merge returns p with every non-nil field of o applied.
func (p ThresholdProfile) Merge(o *ThresholdOverride) ThresholdProfile {
	if o == nil {
		return p
	}
	if o.Min != nil {
		p.Min = *o.Min
	}
	if o.Max != nil {
		p.Max = *o.Max
	}
	if o.CriticalMin != nil {
		p.CriticalMin = *o.CriticalMin
	}
	if o.CriticalMax != nil {
		p.CriticalMax = *o.CriticalMax
	}
	return p
}

// Ordered reports whether CriticalMin < Min < Max < CriticalMax.
func (p ThresholdProfile) Ordered() bool {
	return p.CriticalMin < p.Min && p.Min < p.Max && p.Max < p.CriticalMax
}
