package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Durable key-value store for the entity registry and settings.
	DBPath string

	// Forecast polling.
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	ForecastBaseURL string

	// Optional air-quality enrichment.
	AirQualityEnabled bool
	AirQualityBaseURL string

	// Geocode search.
	GeocodingBaseURL string
	SearchMinLength  int
	SearchLimit      int
	SearchLanguage   string

	// Device geolocation and reverse lookup.
	ReverseGeocodeBaseURL string
	GeolocateHighTimeout  time.Duration
	GeolocateLowTimeout   time.Duration
	GeolocateMaxAge       time.Duration
	LookupCacheSize       int

	// Fixed-position override for hosts without a location device. Both
	// must be set together; when present the resolver skips the device API.
	PrimaryLatitude  *float64
	PrimaryLongitude *float64
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:  envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		DBPath: envOrDefault("DB_PATH", "weatherclock.db"),

		ForecastBaseURL:       envOrDefault("FORECAST_BASE_URL", "https://api.open-meteo.com"),
		AirQualityBaseURL:     envOrDefault("AIR_QUALITY_BASE_URL", "https://air-quality-api.open-meteo.com"),
		GeocodingBaseURL:      envOrDefault("GEOCODING_BASE_URL", "https://geocoding-api.open-meteo.com"),
		ReverseGeocodeBaseURL: envOrDefault("REVERSE_GEOCODE_BASE_URL", "https://api.bigdatacloud.net"),

		SearchLanguage: envOrDefault("SEARCH_LANGUAGE", "en"),

		AirQualityEnabled: os.Getenv("AIR_QUALITY_ENABLED") == "true",
	}

	var err error
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = durationEnv("REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.GeolocateHighTimeout, err = durationEnv("GEOLOCATE_HIGH_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.GeolocateLowTimeout, err = durationEnv("GEOLOCATE_LOW_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.GeolocateMaxAge, err = durationEnv("GEOLOCATE_MAX_AGE", 10*time.Minute); err != nil {
		return nil, err
	}

	if cfg.SearchMinLength, err = intEnv("SEARCH_MIN_LENGTH", 2); err != nil {
		return nil, err
	}
	if cfg.SearchLimit, err = intEnv("SEARCH_LIMIT", 8); err != nil {
		return nil, err
	}
	if cfg.LookupCacheSize, err = intEnv("LOOKUP_CACHE_SIZE", 256); err != nil {
		return nil, err
	}

	if cfg.PrimaryLatitude, err = floatEnv("PRIMARY_LATITUDE"); err != nil {
		return nil, err
	}
	if cfg.PrimaryLongitude, err = floatEnv("PRIMARY_LONGITUDE"); err != nil {
		return nil, err
	}
	if (cfg.PrimaryLatitude == nil) != (cfg.PrimaryLongitude == nil) {
		return nil, fmt.Errorf("PRIMARY_LATITUDE and PRIMARY_LONGITUDE must be set together")
	}

	if cfg.DBPath == "" {
		return nil, fmt.Errorf("DB_PATH is required")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func floatEnv(key string) (*float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, s)
	}
	return &f, nil
}
