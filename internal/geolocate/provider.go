package geolocate

import (
	"context"
	"errors"
	"time"
)

// Position is a device location fix.
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters, 0 when unknown
}

// Options mirror the device geolocation API's per-request knobs.
type Options struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	MaximumAge         time.Duration // accept a cached fix no older than this
}

// Sentinel errors a PositionProvider reports. The resolver maps them to the
// user-facing GeolocationError kinds.
var (
	ErrPermissionDenied    = errors.New("geolocation permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("geolocation timed out")
	ErrUnsupported         = errors.New("geolocation unsupported on this device")
)

// PositionProvider abstracts the device geolocation API.
type PositionProvider interface {
	CurrentPosition(ctx context.Context, opts Options) (Position, error)
}

// StaticProvider serves a fixed position, for hosts without a location
// device (configured via PRIMARY_LATITUDE / PRIMARY_LONGITUDE).
type StaticProvider struct {
	Latitude  float64
	Longitude float64
}

func (p *StaticProvider) CurrentPosition(_ context.Context, _ Options) (Position, error) {
	return Position{Latitude: p.Latitude, Longitude: p.Longitude}, nil
}

// UnsupportedProvider always fails, for hosts with no location source at
// all. The resolver turns this into guidance toward manual configuration.
type UnsupportedProvider struct{}

func (p *UnsupportedProvider) CurrentPosition(_ context.Context, _ Options) (Position, error) {
	return Position{}, ErrUnsupported
}
