package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"beacon/internal/constants"
	"beacon/pkg/metrics"
)

// HTTPBalanceProvider fetches a numeric balance from a JSON HTTP API. The
// URL template's `{principal}` placeholder is replaced with the queried
// identity.
type HTTPBalanceProvider struct {
	name        string
	urlTemplate string
	client      *http.Client
	timeout     time.Duration
}

func NewHTTPBalanceProvider(name, urlTemplate string, timeout time.Duration) *HTTPBalanceProvider {
	if timeout <= 0 {
		timeout = constants.DefaultProviderTimeout
	}
	return &HTTPBalanceProvider{
		name:        name,
		urlTemplate: urlTemplate,
		client: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
		},
		timeout: timeout,
	}
}

func (p *HTTPBalanceProvider) Name() string {
	return p.name
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
}

func (p *HTTPBalanceProvider) Balance(ctx context.Context, principal string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	balance, err := p.fetch(ctx, principal)
	if err != nil {
		metrics.ObserveProviderDuration(p.name, time.Since(start), "error")
		return 0, err
	}

	metrics.ObserveProviderDuration(p.name, time.Since(start), "success")
	return balance, nil
}

func (p *HTTPBalanceProvider) fetch(ctx context.Context, principal string) (float64, error) {
	url := strings.ReplaceAll(p.urlTemplate, "{principal}", principal)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s balance lookup failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return 0, fmt.Errorf("%s balance api returned status: %d", p.name, resp.StatusCode)
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode %s balance response: %w", p.name, err)
	}

	return body.Balance, nil
}
