package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ClockEntity is a named location tracked by the dashboard. Exactly one
// entity is primary; it is resolved from device geolocation (or a confirmed
// override) rather than the persisted secondary list.
type ClockEntity struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	CountryCode string  `json:"country_code,omitempty"`
	IsPrimary   bool    `json:"is_primary"`
}

// NewEntityID returns a fresh unique entity id.
func NewEntityID() string {
	return uuid.NewString()
}

// NormalizeName canonicalizes a display name for duplicate detection:
// lowercase, whitespace collapsed. Dedup compares formatted display strings,
// not coordinates, so the same place re-added under a different formatting
// is treated as distinct.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// SearchResult is an ephemeral location candidate returned by geocode
// search. Selected results become ClockEntities; results are never persisted.
type SearchResult struct {
	Name        string  `json:"name"`
	Admin1      string  `json:"admin1,omitempty"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	TimeZone    string  `json:"timezone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// DisplayName formats a search result the way it is shown and deduplicated:
// "Name, Admin1, Country" with empty parts omitted.
func (r SearchResult) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Name, r.Admin1, r.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Entity converts a search result into a clock entity candidate. The id is
// assigned by the registry on add.
func (r SearchResult) Entity() ClockEntity {
	return ClockEntity{
		DisplayName: r.DisplayName(),
		TimeZone:    r.TimeZone,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		CountryCode: r.CountryCode,
	}
}
