package evaluator

import (
	"testing"

	"agrismart-monitor/internal/models"

	"github.com/stretchr/testify/assert"
)

func fp(v float64) *float64 { return &v }

func soilSensor() *models.Sensor {
	return &models.Sensor{ID: "s-1", Type: models.SensorSoilMoisture}
}

func TestClassify_Zones(t *testing.T) {
	p := models.ThresholdProfile{Min: 20, Max: 80, CriticalMin: 10, CriticalMax: 95}

	cases := []struct {
		value float64
		want  models.Zone
	}{
		{5, models.ZoneCritical},
		{10, models.ZoneCritical},
		{10.5, models.ZoneWarning},
		{20, models.ZoneWarning},
		{20.01, models.ZoneNormal},
		{50, models.ZoneNormal},
		{80, models.ZoneWarning},
		{94.9, models.ZoneWarning},
		{95, models.ZoneCritical},
		{120, models.ZoneCritical},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(p, c.value), "value %v", c.value)
	}
}

func TestClassify_CriticalImpliesOutsideWarning(t *testing.T) {
	p := models.ThresholdProfile{Min: 20, Max: 80, CriticalMin: 10, CriticalMax: 95}
	for v := -10.0; v <= 110; v += 0.5 {
		if Classify(p, v) == models.ZoneCritical {
			assert.True(t, v <= p.Min || v >= p.Max, "critical value %v inside warning band", v)
		}
	}
}

func TestEvaluate_SoilMoistureCritical(t *testing.T) {
	e := NewEvaluator(StaticProfiles(DefaultProfiles()))

	v := e.Evaluate(soilSensor(), 8)
	assert.Equal(t, models.ZoneCritical, v.Zone)
	assert.Equal(t, models.SeverityCritical, v.Severity)
	assert.True(t, v.Breach())

	// deterministic across calls
	assert.Equal(t, v, e.Evaluate(soilSensor(), 8))
}

func TestEvaluate_Warning(t *testing.T) {
	e := NewEvaluator(StaticProfiles(DefaultProfiles()))

	v := e.Evaluate(soilSensor(), 85)
	assert.Equal(t, models.ZoneWarning, v.Zone)
	assert.Equal(t, models.SeverityWarning, v.Severity)
}

func TestEvaluate_UnmonitoredTypeIsNormal(t *testing.T) {
	e := NewEvaluator(StaticProfiles(DefaultProfiles()))

	v := e.Evaluate(&models.Sensor{ID: "l-1", Type: models.SensorLight}, 1e9)
	assert.Equal(t, models.ZoneNormal, v.Zone)
	assert.False(t, v.Monitored)
	assert.False(t, v.Breach())
}

func TestEvaluate_OverrideWinsPerField(t *testing.T) {
	e := NewEvaluator(StaticProfiles(DefaultProfiles()))
	s := soilSensor()
	s.Threshold = &models.ThresholdOverride{Max: fp(60)}

	v := e.Evaluate(s, 65)
	assert.Equal(t, models.ZoneWarning, v.Zone)
	assert.Equal(t, 60.0, v.Profile.Max)
	assert.Equal(t, 95.0, v.Profile.CriticalMax)
	assert.Equal(t, 20.0, v.Profile.Min)
}
