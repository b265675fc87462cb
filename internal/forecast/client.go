package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/weatherclock/internal/domain"
	"github.com/couchcryptid/weatherclock/internal/observability"
)

// Field-selection lists requested from the forecast endpoint. The response
// mirrors these names as parallel arrays (see domain.ForecastPayload).
const (
	currentFields = "temperature_2m,weather_code,is_day,wind_speed_10m"
	hourlyFields  = "time,weather_code,temperature_2m,apparent_temperature,relative_humidity_2m"
	dailyFields   = "time,weather_code,temperature_2m_max,temperature_2m_min,sunrise,sunset"
)

// Client fetches forecasts from an Open-Meteo-compatible endpoint. A circuit
// breaker fails fast during sustained outages; there is no retry or backoff,
// the poller's next tick is the only retry mechanism.
type Client struct {
	httpClient *http.Client
	baseURL    string
	airBaseURL string
	airQuality bool
	breaker    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// ClientOptions configures a forecast client.
type ClientOptions struct {
	BaseURL           string
	AirQualityBaseURL string
	AirQualityEnabled bool
	Timeout           time.Duration
}

// NewClient creates a forecast client.
func NewClient(opts ClientOptions, metrics *observability.Metrics, logger *slog.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "forecast",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		airBaseURL: opts.AirQualityBaseURL,
		airQuality: opts.AirQualityEnabled,
		breaker:    cb,
		metrics:    metrics,
		logger:     logger,
	}
}

// Fetch retrieves the forecast for one coordinate pair. Transport and HTTP
// failures return a NetworkError; the payload is decoded but not validated.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (*domain.ForecastPayload, error) {
	params := url.Values{
		"latitude":  {formatCoord(lat)},
		"longitude": {formatCoord(lon)},
		"current":   {currentFields},
		"hourly":    {hourlyFields},
		"daily":     {dailyFields},
		"timezone":  {"auto"},
	}

	start := time.Now()
	payload, err := c.fetchForecast(ctx, params)
	c.metrics.ForecastFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	// Air quality is enrichment only: failures are logged, never surfaced.
	if c.airQuality {
		aq, err := c.fetchAirQuality(ctx, lat, lon)
		if err != nil {
			c.logger.Warn("air quality fetch failed", "lat", lat, "lon", lon, "error", err)
		} else {
			payload.AirQuality = aq
		}
	}

	return payload, nil
}

func (c *Client) fetchForecast(ctx context.Context, params url.Values) (*domain.ForecastPayload, error) {
	fullURL := c.baseURL + "/v1/forecast?" + params.Encode()

	result, err := c.breaker.Execute(func() (any, error) {
		return c.doRequest(ctx, fullURL)
	})
	if err != nil {
		return nil, &domain.NetworkError{Op: "forecast fetch", Err: err}
	}

	body := result.([]byte)
	var payload domain.ForecastPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &domain.NetworkError{Op: "forecast decode", Err: err}
	}
	return &payload, nil
}

func (c *Client) fetchAirQuality(ctx context.Context, lat, lon float64) (*domain.AirQuality, error) {
	params := url.Values{
		"latitude":  {formatCoord(lat)},
		"longitude": {formatCoord(lon)},
		"current":   {"european_aqi,pm2_5,pm10"},
	}
	body, err := c.doRequest(ctx, c.airBaseURL+"/v1/air-quality?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Current domain.AirQuality `json:"current"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode air quality: %w", err)
	}
	return &resp.Current, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
