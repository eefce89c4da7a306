// Package weather fetches current conditions and forecasts from OpenWeatherMap
// and derives agricultural advisories from them.
package weather

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"agrismart-monitor/internal/cache"
	"agrismart-monitor/internal/clock"
)

const (
	DefaultBaseURL  = "https://api.openweathermap.org/data/2.5"
	DefaultCacheTTL = 30 * time.Minute
)

type Current struct {
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	WindKmh     float64   `json:"wind_kmh"`
	WindDeg     float64   `json:"wind_deg"`
	Clouds      float64   `json:"clouds"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Sunrise     time.Time `json:"sunrise"`
	Sunset      time.Time `json:"sunset"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type DailyForecast struct {
	Date            string  `json:"date"`
	TempMin         float64 `json:"temp_min"`
	TempMax         float64 `json:"temp_max"`
	HumidityAverage float64 `json:"humidity_average"`
	PrecipitationMM float64 `json:"precipitation_mm"`
	Description     string  `json:"description"`
	Icon            string  `json:"icon"`
}

type Forecast struct {
	City    string          `json:"city"`
	Country string          `json:"country"`
	Days    []DailyForecast `json:"days"`
}

// OpenWeatherMap wire types.
type owmCondition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owmMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Humidity  float64 `json:"humidity"`
	Pressure  float64 `json:"pressure"`
}

type owmCurrent struct {
	Main    owmMain        `json:"main"`
	Weather []owmCondition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Sys struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

type owmForecast struct {
	List []struct {
		Dt      int64          `json:"dt"`
		Main    owmMain        `json:"main"`
		Weather []owmCondition `json:"weather"`
		Rain    struct {
			ThreeHours float64 `json:"3h"`
		} `json:"rain"`
	} `json:"list"`
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
}

type Client struct {
	httpClient *resty.Client
	apiKey     string
	current    *cache.TTL[string, *Current]
	forecast   *cache.TTL[string, *Forecast]
	clock      clock.Clock
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, ttl time.Duration, clk clock.Clock, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clk == nil {
		clk = clock.System{}
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		current:    cache.NewTTL[string, *Current](ttl, clk),
		forecast:   cache.NewTTL[string, *Forecast](ttl, clk),
		clock:      clk,
		logger:     logger,
	}
}

func cacheKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lon, 'f', 4, 64)
}

func (c *Client) get(ctx context.Context, path string, lat, lon float64, out interface{}) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   strconv.FormatFloat(lat, 'f', -1, 64),
			"lon":   strconv.FormatFloat(lon, 'f', -1, 64),
			"appid": c.apiKey,
			"units": "metric",
			"lang":  "fr",
		}).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to call weather API: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("weather API error: status %d", resp.StatusCode())
	}
	return nil
}

// Current returns current conditions, served from cache while fresh.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Current, error) {
	key := cacheKey(lat, lon)
	if v, ok := c.current.Get(key); ok {
		return v, nil
	}

	var raw owmCurrent
	if err := c.get(ctx, "/weather", lat, lon, &raw); err != nil {
		c.logger.Error("Failed to fetch current weather",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return nil, err
	}

	cur := &Current{
		Temperature: math.Round(raw.Main.Temp),
		FeelsLike:   math.Round(raw.Main.FeelsLike),
		Humidity:    raw.Main.Humidity,
		Pressure:    raw.Main.Pressure,
		WindKmh:     math.Round(raw.Wind.Speed * 3.6),
		WindDeg:     raw.Wind.Deg,
		Clouds:      raw.Clouds.All,
		Sunrise:     time.Unix(raw.Sys.Sunrise, 0).UTC(),
		Sunset:      time.Unix(raw.Sys.Sunset, 0).UTC(),
		FetchedAt:   c.clock.Now(),
	}
	if len(raw.Weather) > 0 {
		cur.Description = raw.Weather[0].Description
		cur.Icon = raw.Weather[0].Icon
	}
	c.current.Set(key, cur)
	return cur, nil
}

// Forecast returns the 5-day forecast grouped per UTC day.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	key := cacheKey(lat, lon)
	if v, ok := c.forecast.Get(key); ok {
		return v, nil
	}

	var raw owmForecast
	if err := c.get(ctx, "/forecast", lat, lon, &raw); err != nil {
		c.logger.Error("Failed to fetch weather forecast",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return nil, err
	}

	type bucket struct {
		temps, humidity []float64
		rain            float64
		conditions      []owmCondition
	}
	days := map[string]*bucket{}
	for _, item := range raw.List {
		date := time.Unix(item.Dt, 0).UTC().Format("2006-01-02")
		b, ok := days[date]
		if !ok {
			b = &bucket{}
			days[date] = b
		}
		b.temps = append(b.temps, item.Main.Temp)
		b.humidity = append(b.humidity, item.Main.Humidity)
		b.rain += item.Rain.ThreeHours
		if len(item.Weather) > 0 {
			b.conditions = append(b.conditions, item.Weather[0])
		}
	}

	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	fc := &Forecast{City: raw.City.Name, Country: raw.City.Country}
	for _, d := range dates {
		b := days[d]
		day := DailyForecast{
			Date:            d,
			TempMin:         math.Round(minOf(b.temps)),
			TempMax:         math.Round(maxOf(b.temps)),
			HumidityAverage: math.Round(mean(b.humidity)),
			PrecipitationMM: math.Round(b.rain*10) / 10,
		}
		if len(b.conditions) > 0 {
			mid := b.conditions[len(b.conditions)/2]
			day.Description = mid.Description
			day.Icon = mid.Icon
		}
		fc.Days = append(fc.Days, day)
	}
	c.forecast.Set(key, fc)
	return fc, nil
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
