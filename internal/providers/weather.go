// Package providers holds the pluggable external-data sources: hourly
// weather forecasts and free-text geocoding. One implementation per
// backend, selected once at startup from configuration.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"plantcare-platform/internal/config"
	"plantcare-platform/internal/models"
	"plantcare-platform/pkg/logging"
	"plantcare-platform/pkg/metrics"
)

// WeatherProvider supplies an N-hour-ahead outdoor forecast for a
// coordinate pair. Implementations must respect context cancellation.
type WeatherProvider interface {
	Name() string
	HourlyForecast(ctx context.Context, lat, lon float64, hours int) ([]models.WeatherPoint, error)
}

// NewWeatherProviderFromConfig selects the configured weather backend.
func NewWeatherProviderFromConfig(cfg *config.Config, logger *logging.StructuredLogger, collector *metrics.Collector) (WeatherProvider, error) {
	switch cfg.Weather.Provider {
	case config.WeatherProviderFake:
		return NewFakeWeatherProvider(cfg.Weather.FixturePath)
	case config.WeatherProviderOpenMeteo:
		return NewOpenMeteoProvider(cfg.Weather.Timeout, logger, collector), nil
	default:
		return nil, fmt.Errorf("unknown weather provider: %q", cfg.Weather.Provider)
	}
}

// FakeWeatherProvider replays a fixed forecast fixture from disk, with
// timestamps rebased to the next full hour. Used for offline and dev
// operation where no meteorological API is reachable.
type FakeWeatherProvider struct {
	points []models.WeatherPoint
}

// fixturePoint is the fixture file row shape.
type fixturePoint struct {
	TempC      float64  `json:"temp_c"`
	RH         float64  `json:"rh"`
	Irradiance *float64 `json:"irradiance,omitempty"`
}

// NewFakeWeatherProvider loads the fixture once; a broken fixture is a
// startup error, not a per-request one.
func NewFakeWeatherProvider(fixturePath string) (*FakeWeatherProvider, error) {
	data, err := os.ReadFile(fixturePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read weather fixture: %w", err)
	}

	var rows []fixturePoint
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse weather fixture: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("weather fixture %s contains no points", fixturePath)
	}

	points := make([]models.WeatherPoint, len(rows))
	for i, r := range rows {
		points[i] = models.WeatherPoint{
			TempC:      r.TempC,
			RH:         r.RH,
			Irradiance: r.Irradiance,
		}
	}

	return &FakeWeatherProvider{points: points}, nil
}

// Name identifies the provider in logs and responses.
func (p *FakeWeatherProvider) Name() string { return "fake" }

// HourlyForecast replays the fixture. The fixture wraps around when the
// requested horizon is longer than the file.
func (p *FakeWeatherProvider) HourlyForecast(_ context.Context, _, _ float64, hours int) ([]models.WeatherPoint, error) {
	if hours <= 0 {
		hours = len(p.points)
	}

	base := time.Now().UTC().Truncate(time.Hour).Add(time.Hour)
	out := make([]models.WeatherPoint, hours)
	for i := 0; i < hours; i++ {
		pt := p.points[i%len(p.points)]
		pt.Timestamp = base.Add(time.Duration(i) * time.Hour)
		out[i] = pt
	}
	return out, nil
}

// OpenMeteoProvider fetches a live hourly forecast from the Open-Meteo
// API. No credentials are required; the horizon is capped by the caller.
type OpenMeteoProvider struct {
	baseURL string
	client  *http.Client
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewOpenMeteoProvider builds a live provider with a bounded HTTP client.
func NewOpenMeteoProvider(timeout time.Duration, logger *logging.StructuredLogger, collector *metrics.Collector) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		baseURL: "https://api.open-meteo.com/v1/forecast",
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: collector,
	}
}

// Name identifies the provider in logs and responses.
func (p *OpenMeteoProvider) Name() string { return "open_meteo" }

// openMeteoResponse maps the hourly arrays of the forecast endpoint.
type openMeteoResponse struct {
	Hourly struct {
		Time               []string  `json:"time"`
		Temperature2m      []float64 `json:"temperature_2m"`
		RelativeHumidity2m []float64 `json:"relativehumidity_2m"`
		ShortwaveRadiation []float64 `json:"shortwave_radiation"`
	} `json:"hourly"`
}

// HourlyForecast resolves the coordinates to the provider's forecast grid
// and returns up to hours points starting from the current hour.
func (p *OpenMeteoProvider) HourlyForecast(ctx context.Context, lat, lon float64, hours int) ([]models.WeatherPoint, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("hourly", "temperature_2m,relativehumidity_2m,shortwave_radiation")
	q.Set("forecast_days", fmt.Sprintf("%d", (hours+23)/24))
	q.Set("timezone", "UTC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build forecast request: %w", err)
	}

	timer := time.Now()
	resp, err := p.client.Do(req)
	p.metrics.ProviderRequestDuration.WithLabelValues(p.Name()).Observe(time.Since(timer).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(p.Name())
		return nil, fmt.Errorf("weather fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.metrics.RecordProviderError(p.Name())
		return nil, fmt.Errorf("weather fetch failed: status %d", resp.StatusCode)
	}

	var body openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		p.metrics.RecordProviderError(p.Name())
		return nil, fmt.Errorf("failed to decode forecast response: %w", err)
	}

	n := len(body.Hourly.Time)
	if n == 0 || len(body.Hourly.Temperature2m) != n || len(body.Hourly.RelativeHumidity2m) != n {
		return nil, fmt.Errorf("forecast response has inconsistent hourly arrays")
	}

	now := time.Now().UTC().Truncate(time.Hour)
	points := make([]models.WeatherPoint, 0, hours)
	for i := 0; i < n && len(points) < hours; i++ {
		ts, err := time.Parse("2006-01-02T15:04", body.Hourly.Time[i])
		if err != nil {
			return nil, fmt.Errorf("failed to parse forecast timestamp %q: %w", body.Hourly.Time[i], err)
		}
		if ts.Before(now) {
			continue
		}

		pt := models.WeatherPoint{
			Timestamp: ts,
			TempC:     body.Hourly.Temperature2m[i],
			RH:        body.Hourly.RelativeHumidity2m[i],
		}
		if i < len(body.Hourly.ShortwaveRadiation) {
			irr := body.Hourly.ShortwaveRadiation[i]
			pt.Irradiance = &irr
		}
		points = append(points, pt)
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("forecast response contained no future hours")
	}

	p.logger.Debug(ctx, "[WEATHER_FETCH] Forecast retrieved", logging.Fields{
		"provider": p.Name(),
		"points":   len(points),
		"lat":      lat,
		"lon":      lon,
	})

	return points, nil
}
