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

// HTTPCreatorStatusProvider answers whether a canister identity belongs to a
// creator.
type HTTPCreatorStatusProvider struct {
	urlTemplate string
	client      *http.Client
	timeout     time.Duration
}

func NewHTTPCreatorStatusProvider(urlTemplate string, timeout time.Duration) *HTTPCreatorStatusProvider {
	if timeout <= 0 {
		timeout = constants.DefaultProviderTimeout
	}
	return &HTTPCreatorStatusProvider{
		urlTemplate: urlTemplate,
		client: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
		},
		timeout: timeout,
	}
}

type creatorStatusResponse struct {
	IsCreator bool `json:"is_creator"`
}

func (p *HTTPCreatorStatusProvider) IsCreator(ctx context.Context, canisterID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()

	url := strings.ReplaceAll(p.urlTemplate, "{principal}", canisterID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.ObserveProviderDuration("creator_status", time.Since(start), "error")
		return false, fmt.Errorf("creator status lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		metrics.ObserveProviderDuration("creator_status", time.Since(start), "error")
		return false, fmt.Errorf("creator status api returned status: %d", resp.StatusCode)
	}

	var body creatorStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.ObserveProviderDuration("creator_status", time.Since(start), "error")
		return false, fmt.Errorf("failed to decode creator status response: %w", err)
	}

	metrics.ObserveProviderDuration("creator_status", time.Since(start), "success")
	return body.IsCreator, nil
}
