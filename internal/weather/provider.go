package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agroadvisor/internal/config"
	"agroadvisor/internal/constants"
)

// Provider fetches current and forecast weather for a district.
// Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, district string) (*Snapshot, error)
}

// APIProvider calls an external HTTP weather API. The configured URL
// may contain a {district} placeholder.
type APIProvider struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

func NewAPIProvider(cfg config.ProviderConfig) *APIProvider {
	timeout := constants.DefaultHTTPTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	return &APIProvider{
		name:   cfg.Name,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *APIProvider) Name() string {
	return p.name
}

type apiResponse struct {
	Current  Data            `json:"current"`
	Forecast []ForecastEntry `json:"forecast"`
}

func (p *APIProvider) Fetch(ctx context.Context, district string) (*Snapshot, error) {
	endpoint := strings.ReplaceAll(p.url, "{district}", url.QueryEscape(district))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return nil, fmt.Errorf("weather api returned status: %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	body.Current.District = district
	if body.Current.ObservedAt.IsZero() {
		body.Current.ObservedAt = time.Now()
	}

	return &Snapshot{
		District:  district,
		Current:   body.Current,
		Forecast:  body.Forecast,
		FetchedAt: time.Now(),
		Source:    p.name,
	}, nil
}
