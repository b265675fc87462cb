package geosearch

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
	"unicode/utf8"

	"github.com/couchcryptid/weatherclock/internal/domain"
)

// Client resolves free-text location queries against an Open-Meteo-style
// geocoding endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limit      int
	language   string
	minLength  int
	logger     *slog.Logger
}

// NewClient creates a geocoding search client. Queries shorter than
// minLength resolve to an empty result set without a network call.
func NewClient(baseURL string, limit int, language string, minLength int, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		limit:      limit,
		language:   language,
		minLength:  minLength,
		logger:     logger,
	}
}

// Search returns candidate locations for the query text, best match first.
// An empty result set is not an error.
func (c *Client) Search(ctx context.Context, text string) ([]domain.SearchResult, error) {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < c.minLength {
		return nil, nil
	}

	params := url.Values{
		"name":     {trimmed},
		"count":    {strconv.Itoa(c.limit)},
		"language": {c.language},
		"format":   {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("geocoding API error: status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Results []domain.SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("search completed", "query", text, "results", len(payload.Results))
	return payload.Results, nil
}
