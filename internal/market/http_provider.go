package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPProvider is a DataProvider backed by the indicator collaborator
// service. Indicator arithmetic and OHLCV acquisition live there; this
// client only fetches finished snapshots.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider against the collaborator's base URL
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IndicatorSnapshot fetches one timeframe's indicator state
func (p *HTTPProvider) IndicatorSnapshot(ctx context.Context, instrument, timeframe string, window int) (*IndicatorSnapshot, error) {
	endpoint := fmt.Sprintf("%s/v1/indicators/%s/%s?window=%s",
		p.baseURL, url.PathEscape(instrument), url.PathEscape(timeframe), strconv.Itoa(window))

	var snap IndicatorSnapshot
	if err := p.get(ctx, endpoint, &snap); err != nil {
		return nil, fmt.Errorf("indicator snapshot %s %s: %w", instrument, timeframe, err)
	}
	return &snap, nil
}

// MicrostructureSnapshot fetches the current spread/volatility/volume state
func (p *HTTPProvider) MicrostructureSnapshot(ctx context.Context, instrument string) (*MicrostructureSnapshot, error) {
	endpoint := fmt.Sprintf("%s/v1/microstructure/%s", p.baseURL, url.PathEscape(instrument))

	var snap MicrostructureSnapshot
	if err := p.get(ctx, endpoint, &snap); err != nil {
		return nil, fmt.Errorf("microstructure snapshot %s: %w", instrument, err)
	}
	return &snap, nil
}

func (p *HTTPProvider) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collaborator returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
