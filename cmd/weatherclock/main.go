package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/weatherclock/internal/adapter/http"
	"github.com/couchcryptid/weatherclock/internal/config"
	"github.com/couchcryptid/weatherclock/internal/derived"
	"github.com/couchcryptid/weatherclock/internal/domain"
	"github.com/couchcryptid/weatherclock/internal/forecast"
	"github.com/couchcryptid/weatherclock/internal/geolocate"
	"github.com/couchcryptid/weatherclock/internal/geosearch"
	"github.com/couchcryptid/weatherclock/internal/observability"
	"github.com/couchcryptid/weatherclock/internal/registry"
)

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store, err := registry.OpenStore(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	fetcher := forecast.NewClient(forecast.ClientOptions{
		BaseURL:           cfg.ForecastBaseURL,
		AirQualityBaseURL: cfg.AirQualityBaseURL,
		AirQualityEnabled: cfg.AirQualityEnabled,
		Timeout:           cfg.FetchTimeout,
	}, metrics, logger)
	poller := forecast.NewPoller(fetcher, forecast.NewValidator(), clock, metrics, logger)

	startPoller := func(entity domain.ClockEntity, interval time.Duration,
		onSnapshot func(string, domain.WeatherSnapshot), onError func(string, error)) registry.PollerHandle {
		return poller.Start(entity, interval, onSnapshot, onError)
	}

	reg := registry.New(store, startPoller, domain.Settings{RefreshInterval: cfg.RefreshInterval}, logger)
	defer reg.Close()

	publisher := derived.NewPublisher(clock, logger)
	publisher.Subscribe(func(weatherCode int, isDay bool) {
		logger.Info("conditions changed", "weather_code", weatherCode, "is_day", isDay)
	})
	reg.SetPrimaryObserver(publisher.OnSnapshot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := reg.Load(ctx); err != nil {
		logger.Error("failed to load registry", "error", err)
		os.Exit(1)
	}

	resolvePrimary(ctx, cfg, reg, metrics, logger)

	if err := publisher.Start(); err != nil {
		logger.Error("failed to start publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Stop()

	searcher := geosearch.NewClient(cfg.GeocodingBaseURL, cfg.SearchLimit, cfg.SearchLanguage, cfg.SearchMinLength, cfg.FetchTimeout, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, reg, reg, searcher, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// resolvePrimary establishes the primary entity: a previously confirmed
// override wins; otherwise a one-shot geolocation resolution runs against
// the configured position source. Failure is not fatal — secondaries keep
// polling and readiness reports the missing primary.
func resolvePrimary(ctx context.Context, cfg *config.Config, reg *registry.Registry, metrics *observability.Metrics, logger *slog.Logger) {
	for _, e := range reg.List() {
		if e.IsPrimary {
			logger.Info("primary restored from override", "display_name", e.DisplayName)
			return
		}
	}

	var provider geolocate.PositionProvider = &geolocate.UnsupportedProvider{}
	if cfg.PrimaryLatitude != nil && cfg.PrimaryLongitude != nil {
		provider = &geolocate.StaticProvider{Latitude: *cfg.PrimaryLatitude, Longitude: *cfg.PrimaryLongitude}
	}

	lookup := geolocate.NewCachedLookup(
		geolocate.NewLookupClient(cfg.ReverseGeocodeBaseURL, cfg.SearchLanguage, cfg.FetchTimeout, logger),
		cfg.LookupCacheSize, metrics)

	resolver := geolocate.NewResolver(provider, lookup, geolocate.ResolverOptions{
		HighAccuracy: geolocate.Options{EnableHighAccuracy: true, Timeout: cfg.GeolocateHighTimeout},
		LowAccuracy:  geolocate.Options{Timeout: cfg.GeolocateLowTimeout, MaximumAge: cfg.GeolocateMaxAge},
	}, metrics, logger)

	candidate, err := resolver.Resolve(ctx)
	if err != nil {
		logger.Warn("primary resolution failed; add a location manually or set PRIMARY_LATITUDE/PRIMARY_LONGITUDE",
			"error", err)
		return
	}

	entity, err := reg.SetPrimary(ctx, candidate)
	if err != nil {
		logger.Error("failed to set primary entity", "error", err)
		return
	}
	logger.Info("primary resolved", "display_name", entity.DisplayName, "time_zone", entity.TimeZone)
}
