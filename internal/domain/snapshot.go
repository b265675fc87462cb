package domain

import "time"

// Wire formats used by the forecast API for daily dates and hourly/daily
// instants. Both are local to the requested location's timezone.
const (
	DateLayout    = "2006-01-02"
	InstantLayout = "2006-01-02T15:04"
)

// ForecastPayload is the API-shaped forecast response: a current-conditions
// block plus hourly and daily blocks of parallel arrays keyed by a shared
// time index. Pointer and min=1 tags let the validator distinguish missing
// blocks and fields from legitimate zero values.
type ForecastPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`

	Current *CurrentConditions `json:"current" validate:"required"`
	Hourly  *HourlySeries      `json:"hourly" validate:"required"`
	Daily   *DailySeries       `json:"daily" validate:"required"`

	// Optional enrichment, attached after the forecast fetch. Never validated.
	AirQuality *AirQuality `json:"air_quality,omitempty" validate:"-"`
}

// CurrentConditions is the instantaneous conditions block.
type CurrentConditions struct {
	Time        string   `json:"time"`
	Temperature *float64 `json:"temperature_2m" validate:"required"`
	WeatherCode *int     `json:"weather_code" validate:"required"`
	IsDay       *int     `json:"is_day,omitempty" validate:"-"`
	WindSpeed   *float64 `json:"wind_speed_10m,omitempty" validate:"-"`
}

// HourlySeries holds hourly parallel arrays sharing the Time index.
type HourlySeries struct {
	Time                []string  `json:"time" validate:"required,min=1"`
	WeatherCode         []int     `json:"weather_code" validate:"required,min=1"`
	Temperature         []float64 `json:"temperature_2m" validate:"required,min=1"`
	ApparentTemperature []float64 `json:"apparent_temperature" validate:"required,min=1"`
	RelativeHumidity    []float64 `json:"relative_humidity_2m" validate:"required,min=1"`
}

// DailySeries holds daily parallel arrays sharing the Time index.
// Sunrise and sunset are local instants in the location's timezone.
type DailySeries struct {
	Time           []string  `json:"time" validate:"required,min=1"`
	WeatherCode    []int     `json:"weather_code" validate:"required,min=1"`
	TemperatureMax []float64 `json:"temperature_2m_max" validate:"required,min=1"`
	TemperatureMin []float64 `json:"temperature_2m_min" validate:"required,min=1"`
	Sunrise        []string  `json:"sunrise" validate:"required,min=1"`
	Sunset         []string  `json:"sunset" validate:"required,min=1"`
}

// AirQuality is the optional air-quality enrichment for a snapshot.
type AirQuality struct {
	EuropeanAQI *int     `json:"european_aqi,omitempty"`
	PM25        *float64 `json:"pm2_5,omitempty"`
	PM10        *float64 `json:"pm10,omitempty"`
}

// WeatherSnapshot is one fetched-and-validated forecast for an entity.
// Snapshots are owned by the entity's poller, replaced atomically on each
// successful fetch, and never persisted across restarts.
type WeatherSnapshot struct {
	EntityID  string          `json:"entity_id"`
	Payload   ForecastPayload `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Settings holds the mutable global configuration shared across pollers.
// Single writer (the registry's settings mutation), many readers.
type Settings struct {
	RefreshInterval time.Duration `json:"refresh_interval"`
}
