package geolocate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Place is the reverse-geocoded description of a coordinate pair.
type Place struct {
	Locality             string
	PrincipalSubdivision string
	CountryName          string
	CountryCode          string
	TimeZone             string
}

// DisplayName formats a place for entity display names, omitting empty parts.
func (p Place) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Locality, p.PrincipalSubdivision, p.CountryName} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Lookup resolves coordinates to a Place.
type Lookup interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error)
}

// LookupClient implements Lookup against a BigDataCloud-style reverse
// geocoding endpoint.
type LookupClient struct {
	httpClient *http.Client
	baseURL    string
	language   string
	logger     *slog.Logger
}

// NewLookupClient creates a reverse-geocoding client.
func NewLookupClient(baseURL, language string, timeout time.Duration, logger *slog.Logger) *LookupClient {
	return &LookupClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		language:   language,
		logger:     logger,
	}
}

// ReverseGeocode converts a coordinate pair to place details.
func (c *LookupClient) ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error) {
	params := url.Values{
		"latitude":         {strconv.FormatFloat(lat, 'f', 6, 64)},
		"longitude":        {strconv.FormatFloat(lon, 'f', 6, 64)},
		"localityLanguage": {c.language},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/reverse-geocode-client?"+params.Encode(), nil)
	if err != nil {
		return Place{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Place{}, fmt.Errorf("reverse geocode API error: status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Locality             string `json:"locality"`
		City                 string `json:"city"`
		PrincipalSubdivision string `json:"principalSubdivision"`
		CountryName          string `json:"countryName"`
		CountryCode          string `json:"countryCode"`
		TimeZone             struct {
			IANAName string `json:"ianaName"`
		} `json:"timezone"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Place{}, fmt.Errorf("decode response: %w", err)
	}

	place := Place{
		Locality:             payload.Locality,
		PrincipalSubdivision: payload.PrincipalSubdivision,
		CountryName:          payload.CountryName,
		CountryCode:          payload.CountryCode,
		TimeZone:             payload.TimeZone.IANAName,
	}
	if place.Locality == "" {
		place.Locality = payload.City
	}
	if place.Locality == "" && place.CountryName == "" {
		return Place{}, fmt.Errorf("reverse geocode returned no usable place for %.4f,%.4f", lat, lon)
	}
	return place, nil
}
