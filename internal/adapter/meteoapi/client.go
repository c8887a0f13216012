// Package meteoapi is the HTTP client for the station data service.
package meteoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/meteoci/station-export/internal/domain"
	"github.com/meteoci/station-export/internal/observability"
)

// timeLayouts covers the timestamp shapes the service emits for
// availability windows: naive ISO first, RFC 3339 as fallback.
var timeLayouts = []string{"2006-01-02T15:04:05", time.RFC3339}

// Client talks to the DataService REST API. It implements
// workflow.CatalogSource, workflow.AvailabilityChecker,
// workflow.Estimator, and download.Service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	resilience resilience
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an API client with a per-request timeout and the
// default retry/circuit-breaker settings.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		resilience: newResilience(logger),
		logger:     logger,
		metrics:    metrics,
	}
}

// Health probes GET /api/health.
func (c *Client) Health(ctx context.Context) error {
	var payload struct {
		Status string `json:"status"`
	}
	body, err := c.get(ctx, "/api/health", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if payload.Status != "ok" {
		return &domain.ServiceError{Endpoint: "/api/health", Msg: fmt.Sprintf("service status %q", payload.Status)}
	}
	return nil
}

// Stations loads the station catalog, optionally scoped by station type.
func (c *Client) Stations(ctx context.Context, stationType domain.StationType) ([]domain.Station, error) {
	query := url.Values{}
	if stationType != "" {
		query.Set("station_type", string(stationType))
	}

	var stations []domain.Station
	if err := c.getData(ctx, "/api/stations", query, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// Parameters loads the parameter catalog grouped by category,
// optionally scoped by station type. The service keys categories by
// name; they are returned sorted by key for a stable order.
func (c *Client) Parameters(ctx context.Context, stationType domain.StationType) ([]domain.ParameterCategory, error) {
	query := url.Values{}
	if stationType != "" {
		query.Set("station_type", string(stationType))
	}

	var raw map[string]struct {
		Label  string             `json:"label"`
		Params []domain.Parameter `json:"params"`
	}
	if err := c.getData(ctx, "/api/parameters", query, &raw); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	categories := make([]domain.ParameterCategory, 0, len(keys))
	for _, k := range keys {
		categories = append(categories, domain.ParameterCategory{
			Key:    k,
			Label:  raw[k].Label,
			Params: raw[k].Params,
		})
	}
	return categories, nil
}

// CheckAvailability fetches the per-station recorded-data windows for
// a station set at a granularity. A station reported without data is
// returned as content, not as an error.
func (c *Client) CheckAvailability(ctx context.Context, stations []string, g domain.Granularity) (map[string]domain.StationAvailability, error) {
	req := struct {
		Stations    []string           `json:"stations"`
		Granularity domain.Granularity `json:"granularity"`
	}{Stations: stations, Granularity: g}

	var raw map[string]availabilityRecord
	if err := c.postData(ctx, "/api/stations/availability", req, &raw); err != nil {
		return nil, err
	}

	result := make(map[string]domain.StationAvailability, len(raw))
	for id, rec := range raw {
		result[id] = rec.toDomain()
	}
	return result, nil
}

// Estimate fetches the row/size estimate for a full export tuple.
func (c *Client) Estimate(ctx context.Context, req domain.ExportRequest) (domain.EstimateResult, error) {
	var est domain.EstimateResult
	if err := c.postData(ctx, "/api/estimate", req, &est); err != nil {
		return domain.EstimateResult{}, err
	}
	return est, nil
}

// Download fetches the raw CSV payload for a full export tuple.
func (c *Client) Download(ctx context.Context, req domain.ExportRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode download request: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/api/download", nil, body)
}

// getData performs a GET and unwraps the {status, data} envelope.
func (c *Client) getData(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	return unwrapData(path, body, out)
}

// postData performs a JSON POST and unwraps the {status, data} envelope.
func (c *Client) postData(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	body, err := c.do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return err
	}
	return unwrapData(path, body, out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// envelope is the service's JSON response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func unwrapData(path string, body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if env.Status != "success" {
		return &domain.ServiceError{Endpoint: path, Msg: env.Message}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}

// availabilityRecord is the wire shape of one station's availability.
type availabilityRecord struct {
	HasData   bool   `json:"has_data"`
	FirstDate string `json:"first_date"`
	LastDate  string `json:"last_date"`
	DaysCount int    `json:"days_count"`
	Duration  string `json:"duration_formatted"`
	Label     string `json:"label"`
	Error     string `json:"error"`
}

func (r availabilityRecord) toDomain() domain.StationAvailability {
	return domain.StationAvailability{
		HasData:   r.HasData,
		FirstDate: parseServiceTime(r.FirstDate),
		LastDate:  parseServiceTime(r.LastDate),
		DaysCount: r.DaysCount,
		Duration:  r.Duration,
		Label:     r.Label,
		Err:       r.Error,
	}
}

func parseServiceTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
