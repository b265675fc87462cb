package geolocate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/weatherclock/internal/domain"
	"github.com/couchcryptid/weatherclock/internal/observability"
)

// Resolver performs the one-shot primary-location resolution:
//
//	idle → locating(high accuracy) → success
//	                               → locating(low accuracy) → success | error
//	                               → error
//
// The low-accuracy fallback happens exactly once and only on a
// high-accuracy timeout; permission-denied, position-unavailable, and
// unsupported go straight to a terminal error. A successful fix is
// reverse-geocoded into a primary ClockEntity candidate; lookup failure is
// reported as a LookupError, distinct from the geolocation errors, since
// coordinates were in fact obtained.
//
// The resolver is single-shot per session: the first terminal outcome is
// memoized and returned to every subsequent caller.
type Resolver struct {
	provider PositionProvider
	lookup   Lookup
	highOpts Options
	lowOpts  Options
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	done   bool
	entity domain.ClockEntity
	err    error
}

// ResolverOptions configures the two accuracy tiers. The low tier gets a
// longer timeout and tolerates a cached fix.
type ResolverOptions struct {
	HighAccuracy Options
	LowAccuracy  Options
}

// NewResolver creates a resolver over a position provider and a reverse
// lookup.
func NewResolver(provider PositionProvider, lookup Lookup, opts ResolverOptions, metrics *observability.Metrics, logger *slog.Logger) *Resolver {
	return &Resolver{
		provider: provider,
		lookup:   lookup,
		highOpts: opts.HighAccuracy,
		lowOpts:  opts.LowAccuracy,
		metrics:  metrics,
		logger:   logger,
	}
}

// Resolve runs the state machine to a terminal state and returns the
// primary entity candidate or the terminal error. Safe for concurrent use;
// only the first caller does work.
func (r *Resolver) Resolve(ctx context.Context) (domain.ClockEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return r.entity, r.err
	}

	entity, err := r.resolve(ctx)
	r.done = true
	r.entity = entity
	r.err = err
	return entity, err
}

func (r *Resolver) resolve(ctx context.Context) (domain.ClockEntity, error) {
	pos, err := r.locate(ctx)
	if err != nil {
		return domain.ClockEntity{}, err
	}

	place, err := r.lookup.ReverseGeocode(ctx, pos.Latitude, pos.Longitude)
	if err != nil {
		r.logger.Warn("reverse geocode failed after position fix",
			"lat", pos.Latitude, "lon", pos.Longitude, "error", err)
		return domain.ClockEntity{}, &domain.LookupError{Err: err}
	}

	return domain.ClockEntity{
		DisplayName: place.DisplayName(),
		TimeZone:    place.TimeZone,
		Latitude:    pos.Latitude,
		Longitude:   pos.Longitude,
		CountryCode: place.CountryCode,
		IsPrimary:   true,
	}, nil
}

// locate attempts a high-accuracy fix, falling back to low accuracy only
// on a high-accuracy timeout.
func (r *Resolver) locate(ctx context.Context) (Position, error) {
	pos, err := r.provider.CurrentPosition(ctx, r.highOpts)
	if err == nil {
		r.metrics.GeolocationAttempts.WithLabelValues("high", "success").Inc()
		return pos, nil
	}
	r.metrics.GeolocationAttempts.WithLabelValues("high", "error").Inc()

	if !errors.Is(err, ErrTimeout) {
		return Position{}, classify(err)
	}

	r.logger.Info("high accuracy fix timed out, retrying with low accuracy")
	pos, err = r.provider.CurrentPosition(ctx, r.lowOpts)
	if err != nil {
		r.metrics.GeolocationAttempts.WithLabelValues("low", "error").Inc()
		return Position{}, classify(err)
	}
	r.metrics.GeolocationAttempts.WithLabelValues("low", "success").Inc()
	return pos, nil
}

// classify maps provider sentinel errors onto the user-facing taxonomy.
func classify(err error) *domain.GeolocationError {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return &domain.GeolocationError{
			Kind:    domain.GeolocationDenied,
			Message: "location permission denied; enable location access or add your location manually",
		}
	case errors.Is(err, ErrTimeout):
		return &domain.GeolocationError{
			Kind:    domain.GeolocationTimeout,
			Message: "location request timed out; add your location manually",
		}
	case errors.Is(err, ErrUnsupported):
		return &domain.GeolocationError{
			Kind:    domain.GeolocationUnsupported,
			Message: "no location source on this device; set PRIMARY_LATITUDE and PRIMARY_LONGITUDE or add your location manually",
		}
	default:
		return &domain.GeolocationError{
			Kind:    domain.GeolocationUnavailable,
			Message: "position unavailable: " + err.Error(),
		}
	}
}
