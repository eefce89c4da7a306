package alerting

import (
	"fmt"
	"strconv"

	"agrismart-monitor/internal/models"
)

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func thresholdTitle(t models.SensorType, sev models.Severity) string {
	if sev == models.SeverityCritical {
		return "Valeur critique: " + t.Label()
	}
	return "Attention: " + t.Label()
}

func thresholdMessage(t models.SensorType, value float64, sev models.Severity, stationName string) string {
	reading := formatValue(value) + t.Unit()
	if sev == models.SeverityCritical {
		return fmt.Sprintf("⚠️ ATTENTION: %s a atteint un niveau critique (%s) sur la station %s. Action immédiate requise.",
			t.Label(), reading, stationName)
	}
	return fmt.Sprintf("%s hors des limites normales (%s) sur la station %s. Surveillance recommandée.",
		t.Label(), reading, stationName)
}

func offlineTitle(t models.SensorType) string {
	return "Capteur hors ligne: " + t.Label()
}

func offlineMessage(s *models.Sensor, silentFor int) string {
	if s.LastMeasurementAt == nil {
		return fmt.Sprintf("Le capteur %s sur la station %s n'a encore transmis aucune mesure.", s.Type.Label(), s.StationName)
	}
	return fmt.Sprintf("Le capteur %s sur la station %s ne répond plus depuis %d minutes.", s.Type.Label(), s.StationName, silentFor)
}

func trendTitle(t models.SensorType) string {
	return "Tendance à la hausse: " + t.Label()
}

func trendMessage(f models.TrendFinding) string {
	return fmt.Sprintf("Tendance à la hausse détectée pour %s sur la station %s. Valeur actuelle: %s%s, Moyenne %dh: %.2f%s",
		f.Sensor.Type.Label(), f.Sensor.StationName,
		formatValue(f.Latest), f.Sensor.Type.Unit(),
		int(f.Window.Hours()), f.Mean, f.Sensor.Type.Unit())
}

const (
	testTitle   = "Alerte de test"
	testMessage = "Ceci est une alerte de test du système AgriSmart CI"
)
