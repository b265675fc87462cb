package geolocate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weatherclock/internal/domain"
	"github.com/couchcryptid/weatherclock/internal/observability"
)

type attempt struct {
	opts Options
}

// fakeProvider returns scripted outcomes per attempt and records the
// options each attempt was made with.
type fakeProvider struct {
	outcomes []error // nil means success
	position Position
	attempts []attempt
}

func (p *fakeProvider) CurrentPosition(_ context.Context, opts Options) (Position, error) {
	i := len(p.attempts)
	p.attempts = append(p.attempts, attempt{opts: opts})
	if i < len(p.outcomes) && p.outcomes[i] != nil {
		return Position{}, p.outcomes[i]
	}
	return p.position, nil
}

type fakeLookup struct {
	place Place
	err   error
	calls int
}

func (l *fakeLookup) ReverseGeocode(_ context.Context, _, _ float64) (Place, error) {
	l.calls++
	return l.place, l.err
}

func chennaiPlace() Place {
	return Place{
		Locality:             "Chennai",
		PrincipalSubdivision: "Tamil Nadu",
		CountryName:          "India",
		CountryCode:          "IN",
		TimeZone:             "Asia/Kolkata",
	}
}

func newTestResolver(provider PositionProvider, lookup Lookup) *Resolver {
	return NewResolver(provider, lookup, ResolverOptions{
		HighAccuracy: Options{EnableHighAccuracy: true, Timeout: 5 * time.Second},
		LowAccuracy:  Options{Timeout: 15 * time.Second, MaximumAge: 10 * time.Minute},
	}, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolver_HighAccuracySuccess(t *testing.T) {
	provider := &fakeProvider{position: Position{Latitude: 13.08, Longitude: 80.27}}
	lookup := &fakeLookup{place: chennaiPlace()}

	entity, err := newTestResolver(provider, lookup).Resolve(context.Background())
	require.NoError(t, err)

	require.Len(t, provider.attempts, 1)
	assert.True(t, provider.attempts[0].opts.EnableHighAccuracy)
	assert.True(t, entity.IsPrimary)
	assert.Equal(t, "Chennai, Tamil Nadu, India", entity.DisplayName)
	assert.Equal(t, "Asia/Kolkata", entity.TimeZone)
	assert.Equal(t, 13.08, entity.Latitude)
	assert.Equal(t, 80.27, entity.Longitude)
	assert.Equal(t, "IN", entity.CountryCode)
}

func TestResolver_TimeoutFallsBackToLowAccuracyExactlyOnce(t *testing.T) {
	provider := &fakeProvider{
		outcomes: []error{ErrTimeout, nil},
		position: Position{Latitude: 13.08, Longitude: 80.27},
	}
	lookup := &fakeLookup{place: chennaiPlace()}

	entity, err := newTestResolver(provider, lookup).Resolve(context.Background())
	require.NoError(t, err)

	require.Len(t, provider.attempts, 2)
	assert.True(t, provider.attempts[0].opts.EnableHighAccuracy)
	assert.False(t, provider.attempts[1].opts.EnableHighAccuracy)
	assert.Greater(t, provider.attempts[1].opts.Timeout, provider.attempts[0].opts.Timeout,
		"low tier gets a longer timeout")
	assert.NotZero(t, provider.attempts[1].opts.MaximumAge, "low tier tolerates a cached fix")
	assert.Equal(t, "Chennai, Tamil Nadu, India", entity.DisplayName)
}

func TestResolver_SecondTimeoutIsTerminal(t *testing.T) {
	provider := &fakeProvider{outcomes: []error{ErrTimeout, ErrTimeout}}
	lookup := &fakeLookup{place: chennaiPlace()}

	_, err := newTestResolver(provider, lookup).Resolve(context.Background())

	var gerr *domain.GeolocationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, domain.GeolocationTimeout, gerr.Kind)
	assert.Len(t, provider.attempts, 2, "the fallback happens exactly once")
	assert.Zero(t, lookup.calls)
}

func TestResolver_PermissionDeniedSkipsFallback(t *testing.T) {
	provider := &fakeProvider{outcomes: []error{ErrPermissionDenied}}
	lookup := &fakeLookup{place: chennaiPlace()}

	_, err := newTestResolver(provider, lookup).Resolve(context.Background())

	var gerr *domain.GeolocationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, domain.GeolocationDenied, gerr.Kind)
	assert.Len(t, provider.attempts, 1, "denied goes terminal without a low-accuracy attempt")
}

func TestResolver_UnavailableAndUnsupportedKinds(t *testing.T) {
	tests := []struct {
		name string
		errs []error
		kind domain.GeolocationKind
	}{
		{"unavailable", []error{ErrPositionUnavailable}, domain.GeolocationUnavailable},
		{"unsupported", []error{ErrUnsupported}, domain.GeolocationUnsupported},
		{"denied at low tier", []error{ErrTimeout, ErrPermissionDenied}, domain.GeolocationDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{outcomes: tt.errs}
			_, err := newTestResolver(provider, &fakeLookup{}).Resolve(context.Background())

			var gerr *domain.GeolocationError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tt.kind, gerr.Kind)
		})
	}
}

func TestResolver_LookupFailureIsDistinctFromGeolocation(t *testing.T) {
	provider := &fakeProvider{position: Position{Latitude: 13.08, Longitude: 80.27}}
	lookup := &fakeLookup{err: errors.New("api down")}

	_, err := newTestResolver(provider, lookup).Resolve(context.Background())

	var lerr *domain.LookupError
	require.ErrorAs(t, err, &lerr)
	var gerr *domain.GeolocationError
	assert.False(t, errors.As(err, &gerr), "lookup failure is not a geolocation error")
}

func TestResolver_SingleShotMemoizesTerminalState(t *testing.T) {
	provider := &fakeProvider{position: Position{Latitude: 13.08, Longitude: 80.27}}
	lookup := &fakeLookup{place: chennaiPlace()}
	r := newTestResolver(provider, lookup)

	first, err := r.Resolve(context.Background())
	require.NoError(t, err)
	second, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, provider.attempts, 1, "the device API is not re-entered after a terminal state")
	assert.Equal(t, 1, lookup.calls)
}

func TestResolver_ErrorStateIsAlsoMemoized(t *testing.T) {
	provider := &fakeProvider{outcomes: []error{ErrPermissionDenied, nil}}
	r := newTestResolver(provider, &fakeLookup{place: chennaiPlace()})

	_, err1 := r.Resolve(context.Background())
	require.Error(t, err1)
	_, err2 := r.Resolve(context.Background())
	assert.Equal(t, err1, err2)
	assert.Len(t, provider.attempts, 1)
}

func TestStaticProvider(t *testing.T) {
	p := &StaticProvider{Latitude: 13.08, Longitude: 80.27}
	pos, err := p.CurrentPosition(context.Background(), Options{EnableHighAccuracy: true})
	require.NoError(t, err)
	assert.Equal(t, 13.08, pos.Latitude)
	assert.Equal(t, 80.27, pos.Longitude)
}

func TestUnsupportedProvider(t *testing.T) {
	_, err := (&UnsupportedProvider{}).CurrentPosition(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrUnsupported)
}
