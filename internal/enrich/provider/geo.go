package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"beacon/internal/constants"
	"beacon/internal/logger"
	"beacon/pkg/metrics"
)

// HTTPLocationResolver resolves an IP against a geo HTTP API. The URL
// template's `{ip}` placeholder is replaced with the queried address.
type HTTPLocationResolver struct {
	urlTemplate string
	client      *http.Client
}

func NewHTTPLocationResolver(urlTemplate string) *HTTPLocationResolver {
	return &HTTPLocationResolver{
		urlTemplate: urlTemplate,
		client: &http.Client{
			Timeout: constants.DefaultProviderTimeout,
		},
	}
}

type geoAPIResponse struct {
	Status   string `json:"status"`
	Country  string `json:"country"`
	Region   string `json:"regionName"`
	City     string `json:"city"`
	Timezone string `json:"timezone"`
}

func (r *HTTPLocationResolver) Resolve(ctx context.Context, ip string) (*Location, error) {
	url := strings.ReplaceAll(r.urlTemplate, "{ip}", ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return nil, fmt.Errorf("geo api returned status: %d", resp.StatusCode)
	}

	var body geoAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode geo response: %w", err)
	}

	if body.Status != "" && body.Status != "success" {
		return nil, ErrNotFound
	}

	return &Location{
		Country:  body.Country,
		Region:   body.Region,
		City:     body.City,
		Timezone: body.Timezone,
	}, nil
}

// CachedLocationResolver is a Redis read-through cache in front of another
// resolver. Cache failures fall through to the inner resolver.
type CachedLocationResolver struct {
	inner  LocationResolver
	cache  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedLocationResolver(inner LocationResolver, cache *redis.Client, ttl time.Duration, log logger.Logger) *CachedLocationResolver {
	if ttl <= 0 {
		ttl = constants.DefaultGeoCacheTTL
	}
	return &CachedLocationResolver{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: log,
	}
}

func (r *CachedLocationResolver) cacheKey(ip string) string {
	return "geo:" + ip
}

func (r *CachedLocationResolver) Resolve(ctx context.Context, ip string) (*Location, error) {
	key := r.cacheKey(ip)

	if val, err := r.cache.Get(ctx, key).Result(); err == nil {
		var loc Location
		if unmarshalErr := json.Unmarshal([]byte(val), &loc); unmarshalErr == nil {
			metrics.GeoCacheRequestsTotal.WithLabelValues("hit").Inc()
			return &loc, nil
		} else {
			r.logger.WarnwCtx(ctx, "Failed to unmarshal cached location",
				"error", unmarshalErr,
				"cache_key", key,
			)
		}
	}

	metrics.GeoCacheRequestsTotal.WithLabelValues("miss").Inc()

	loc, err := r.inner.Resolve(ctx, ip)
	if err != nil {
		return nil, err
	}

	if bytes, err := json.Marshal(loc); err == nil {
		if err := r.cache.Set(ctx, key, bytes, r.ttl).Err(); err != nil {
			r.logger.WarnwCtx(ctx, "Failed to cache location",
				"error", err,
				"cache_key", key,
			)
		}
	}

	return loc, nil
}
