package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidOperation guards against misuse such as removing the primary
// entity or reordering an unknown id. Rejected synchronously, never ignored.
var ErrInvalidOperation = errors.New("invalid operation")

// NetworkError is a transport or HTTP failure during a forecast or geocode
// fetch. Never fatal: the next scheduled tick (or a manual refresh) is the
// retry mechanism.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError rejects a structurally present but incomplete or
// implausible payload. Reason names the offending field so failures are
// diagnosable from logs alone.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid forecast payload: " + e.Reason
}

// GeolocationKind identifies why device geolocation failed.
type GeolocationKind string

const (
	GeolocationDenied      GeolocationKind = "denied"
	GeolocationUnavailable GeolocationKind = "unavailable"
	GeolocationTimeout     GeolocationKind = "timeout"
	GeolocationUnsupported GeolocationKind = "unsupported"
)

// GeolocationError is terminal for the session: the user is offered
// actionable guidance and a manual-entry fallback instead of a retry loop.
type GeolocationError struct {
	Kind    GeolocationKind
	Message string
}

func (e *GeolocationError) Error() string {
	return fmt.Sprintf("geolocation %s: %s", e.Kind, e.Message)
}

// LookupError is a reverse-geocoding failure after a successful coordinate
// fix. Kept distinct from GeolocationError since coordinates were obtained.
type LookupError struct {
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("reverse geocode lookup: %v", e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// SearchError is a geocode search transport failure. It clears any pending
// result list and never affects the registry.
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// DuplicateError is the two-phase confirmation carrier: adding a candidate
// whose normalized name matches an existing secondary returns this instead
// of inserting. The caller confirms by re-adding with the override flag.
type DuplicateError struct {
	Candidate ClockEntity
	Existing  ClockEntity
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate entity %q requires confirmation", e.Candidate.DisplayName)
}
