package weather

import (
	"context"
	"fmt"

	"agrismart-monitor/internal/models"
)

// Advisory is a weather-derived farming recommendation.
type Advisory struct {
	Kind     string          `json:"kind"`
	Severity models.Severity `json:"severity"`
	Message  string          `json:"message"`
}

const (
	heatLimitC     = 35
	dryHumidityPct = 40
	heavyRainMM    = 30
	strongWindKmh  = 40
)

// Advise derives advisories from current conditions and the forecast.
func Advise(cur *Current, fc *Forecast) []Advisory {
	var out []Advisory
	if cur != nil {
		if cur.Temperature > heatLimitC {
			out = append(out, Advisory{"heat", models.SeverityWarning,
				fmt.Sprintf("Température élevée (%.0f°C). Évitez les travaux aux heures chaudes et hydratez les cultures.", cur.Temperature)})
		}
		if cur.Humidity < dryHumidityPct {
			out = append(out, Advisory{"drought", models.SeverityWarning,
				fmt.Sprintf("Humidité basse (%.0f%%). Irrigation recommandée.", cur.Humidity)})
		}
	}
	if fc != nil {
		for _, d := range fc.Days {
			if d.PrecipitationMM > heavyRainMM {
				out = append(out, Advisory{"rain", models.SeverityInfo,
					fmt.Sprintf("Fortes pluies prévues le %s (%.1fmm). Reporter les traitements phytosanitaires.", d.Date, d.PrecipitationMM)})
				break
			}
		}
	}
	if cur != nil && cur.WindKmh > strongWindKmh {
		out = append(out, Advisory{"wind", models.SeverityWarning,
			fmt.Sprintf("Vent fort (%.0f km/h). Reporter les pulvérisations.", cur.WindKmh)})
	}
	return out
}

// Advisories fetches conditions for a location and derives advisories.
func (c *Client) Advisories(ctx context.Context, lat, lon float64) ([]Advisory, error) {
	cur, err := c.Current(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	fc, err := c.Forecast(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	return Advise(cur, fc), nil
}
