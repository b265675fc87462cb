package forecast

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weatherclock/internal/domain"
	"github.com/couchcryptid/weatherclock/internal/observability"
)

const forecastBody = `{
	"latitude": 13.08,
	"longitude": 80.27,
	"timezone": "Asia/Kolkata",
	"current": {"time": "2026-03-15T10:00", "temperature_2m": 31.4, "weather_code": 2, "is_day": 1},
	"hourly": {
		"time": ["2026-03-15T10:00"],
		"weather_code": [2],
		"temperature_2m": [31.4],
		"apparent_temperature": [35.0],
		"relative_humidity_2m": [68]
	},
	"daily": {
		"time": ["2026-03-15"],
		"weather_code": [2],
		"temperature_2m_max": [33.2],
		"temperature_2m_min": [26.1],
		"sunrise": ["2026-03-15T06:11"],
		"sunset": ["2026-03-15T18:19"]
	}
}`

func testForecastClient(baseURL string) *Client {
	return NewClient(ClientOptions{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Fetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "13.0800", r.URL.Query().Get("latitude"))
		assert.Equal(t, "80.2700", r.URL.Query().Get("longitude"))
		assert.Equal(t, "auto", r.URL.Query().Get("timezone"))
		assert.Contains(t, r.URL.Query().Get("hourly"), "relative_humidity_2m")
		assert.Contains(t, r.URL.Query().Get("daily"), "sunrise")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(forecastBody))
	}))
	defer srv.Close()

	c := testForecastClient(srv.URL)
	payload, err := c.Fetch(context.Background(), 13.08, 80.27)
	require.NoError(t, err)

	require.NotNil(t, payload.Current)
	assert.Equal(t, 31.4, *payload.Current.Temperature)
	assert.Equal(t, 2, *payload.Current.WeatherCode)
	require.NotNil(t, payload.Hourly)
	assert.Equal(t, []float64{68}, payload.Hourly.RelativeHumidity)
	require.NotNil(t, payload.Daily)
	assert.Equal(t, []string{"2026-03-15T06:11"}, payload.Daily.Sunrise)
	assert.Equal(t, "Asia/Kolkata", payload.Timezone)

	// Payload round-trips through the validator.
	assert.NoError(t, NewValidator().Validate(payload))
}

func TestClient_Fetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testForecastClient(srv.URL)
	_, err := c.Fetch(context.Background(), 13.08, 80.27)

	var nerr *domain.NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_Fetch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := testForecastClient(srv.URL)
	_, err := c.Fetch(context.Background(), 13.08, 80.27)

	var nerr *domain.NetworkError
	require.ErrorAs(t, err, &nerr)
}

func TestClient_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: 50 * time.Millisecond},
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := c.Fetch(context.Background(), 13.08, 80.27)
	var nerr *domain.NetworkError
	require.ErrorAs(t, err, &nerr)
}

func TestClient_Fetch_BreakerOpensAfterSustainedFailures(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testForecastClient(srv.URL)
	for i := 0; i < 10; i++ {
		_, err := c.Fetch(context.Background(), 13.08, 80.27)
		require.Error(t, err)
	}

	// The breaker tripped: later calls fail fast without reaching the server.
	assert.Less(t, requests, 10)
}

func TestClient_Fetch_AirQualityAttached(t *testing.T) {
	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(forecastBody))
	}))
	defer forecast.Close()

	air := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/air-quality", r.URL.Path)
		_, _ = w.Write([]byte(`{"current": {"european_aqi": 42, "pm2_5": 11.5, "pm10": 19.0}}`))
	}))
	defer air.Close()

	c := NewClient(ClientOptions{
		BaseURL:           forecast.URL,
		AirQualityBaseURL: air.URL,
		AirQualityEnabled: true,
		Timeout:           5 * time.Second,
	}, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	payload, err := c.Fetch(context.Background(), 13.08, 80.27)
	require.NoError(t, err)
	require.NotNil(t, payload.AirQuality)
	assert.Equal(t, 42, *payload.AirQuality.EuropeanAQI)
}

func TestClient_Fetch_AirQualityFailureIsNonFatal(t *testing.T) {
	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(forecastBody))
	}))
	defer forecast.Close()

	air := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer air.Close()

	c := NewClient(ClientOptions{
		BaseURL:           forecast.URL,
		AirQualityBaseURL: air.URL,
		AirQualityEnabled: true,
		Timeout:           5 * time.Second,
	}, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	payload, err := c.Fetch(context.Background(), 13.08, 80.27)
	require.NoError(t, err)
	assert.Nil(t, payload.AirQuality)
}
