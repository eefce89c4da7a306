package evaluator

import (
	"agrismart-monitor/internal/models"
)

// Verdict is the result of classifying one reading.
type Verdict struct {
	Zone     models.Zone
	Severity models.Severity // empty when Zone is normal
	// Profile is the effective profile used; zero when the type is unmonitored
	Profile   models.ThresholdProfile
	Monitored bool
}

// Breach reports whether the verdict requires an alert.
func (v Verdict) Breach() bool {
	return v.Zone != models.ZoneNormal
}

// ProfileSource supplies per-type default profiles.
type ProfileSource interface {
	Profile(sensorType models.SensorType) (models.ThresholdProfile, bool)
}

// Evaluator classifies readings against effective threshold profiles.
// It has no side effects.
type Evaluator struct {
	profiles ProfileSource
}

// NewEvaluator creates an evaluator over profiles.
func NewEvaluator(profiles ProfileSource) *Evaluator {
	return &Evaluator{profiles: profiles}
}

// EffectiveProfile merges the sensor override over the type default.
// The second return is false when the type has no default (unmonitored).
func (e *Evaluator) EffectiveProfile(sensor *models.Sensor) (models.ThresholdProfile, bool) {
	base, ok := e.profiles.Profile(sensor.Type)
	if !ok {
		return models.ThresholdProfile{}, false
	}
	return base.Merge(sensor.Threshold), true
}

// Evaluate classifies value for sensor. Unmonitored types are always normal.
func (e *Evaluator) Evaluate(sensor *models.Sensor, value float64) Verdict {
	profile, ok := e.EffectiveProfile(sensor)
	if !ok {
		return Verdict{Zone: models.ZoneNormal}
	}

	zone := Classify(profile, value)
	v := Verdict{Zone: zone, Profile: profile, Monitored: true}
	switch zone {
	case models.ZoneCritical:
		v.Severity = models.SeverityCritical
	case models.ZoneWarning:
		v.Severity = models.SeverityWarning
	}
	return v
}

// Classify applies the zone rules in priority order; bounds are inclusive.
//
//	value <= CriticalMin || value >= CriticalMax -> critical
//	value <= Min || value >= Max                 -> warning
//	otherwise                                    -> normal
func Classify(p models.ThresholdProfile, value float64) models.Zone {
	if value <= p.CriticalMin || value >= p.CriticalMax {
		return models.ZoneCritical
	}
	if value <= p.Min || value >= p.Max {
		return models.ZoneWarning
	}
	return models.ZoneNormal
}
