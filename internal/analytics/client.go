// Package analytics is the HTTP client for the platform's machines and
// analytics API. Machine names are cached in Redis with a TTL; every other
// call goes straight through.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"enms-voice/internal/common/cache"
	"enms-voice/internal/common/config"
	"enms-voice/internal/common/errors"
	"enms-voice/internal/common/logger"
	"enms-voice/internal/intent"
)

const machinesCacheKey = "enms:machines"

// Client calls the analytics REST API with bounded retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	cache      *cache.Cache
	cacheTTL   time.Duration
	logger     logger.Logger
}

// NewClient builds the client. The cache is optional; a nil cache disables
// caching without changing behavior.
func NewClient(cfg config.AnalyticsConfig, c *cache.Cache, log logger.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
		cache:      c,
		cacheTTL:   time.Duration(cfg.CacheTTL) * time.Millisecond,
		logger:     log.With(map[string]interface{}{"component": "analytics"}),
	}
}

type machinesResponse struct {
	Machines []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"machines"`
}

// FetchMachineNames returns the platform's machine names, cache-aside with
// the configured TTL. Cache failures degrade to a direct API call.
func (c *Client) FetchMachineNames(ctx context.Context) ([]string, error) {
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, machinesCacheKey); err == nil {
			var names []string
			if err := json.Unmarshal([]byte(cached), &names); err == nil {
				c.logger.Debug("machine names served from cache", map[string]interface{}{
					"count": len(names),
				})
				return names, nil
			}
		} else if !cache.IsMiss(err) {
			c.logger.Warn("machine name cache read failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	body, err := c.get(ctx, "/api/machines", nil)
	if err != nil {
		return nil, err
	}

	var resp machinesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode machines response: %w", err)
	}
	names := make([]string, 0, len(resp.Machines))
	for _, m := range resp.Machines {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}

	if c.cache != nil && len(names) > 0 {
		if encoded, err := json.Marshal(names); err == nil {
			if err := c.cache.Set(ctx, machinesCacheKey, encoded, c.cacheTTL); err != nil {
				c.logger.Warn("machine name cache write failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
	return names, nil
}

// InvalidateMachineCache drops the cached machine list so the next fetch
// hits the API.
func (c *Client) InvalidateMachineCache(ctx context.Context) {
	if c.cache != nil {
		if err := c.cache.Del(ctx, machinesCacheKey); err != nil {
			c.logger.Warn("machine name cache invalidation failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// Dispatch maps a validated intent to its analytics API call and returns
// the decoded payload.
func (c *Client) Dispatch(ctx context.Context, in *intent.Intent) (map[string]interface{}, error) {
	path, query, err := routeFor(in)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, path, query)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode analytics response: %w", err)
	}
	return payload, nil
}

func routeFor(in *intent.Intent) (string, url.Values, error) {
	q := url.Values{}
	if in.Entities.Machine != "" {
		q.Set("machine", in.Entities.Machine)
	}
	if in.Entities.Metric != "" {
		q.Set("metric", in.Entities.Metric)
	}
	if in.Entities.EnergySource != "" {
		q.Set("source", in.Entities.EnergySource)
	}
	encodeTimeRange(q, in.Entities.TimeRange)

	switch in.Type {
	case intent.TypeEnergyQuery:
		return "/api/analytics/energy", q, nil
	case intent.TypePowerQuery:
		return "/api/analytics/power", q, nil
	case intent.TypeFactoryOverview:
		return "/api/analytics/overview", q, nil
	case intent.TypeRanking:
		q.Set("limit", strconv.Itoa(in.Entities.Limit))
		return "/api/analytics/ranking", q, nil
	case intent.TypeAnomalyDetection:
		return "/api/analytics/anomalies", q, nil
	case intent.TypeShortTermForecast:
		return "/api/forecast/short-term", q, nil
	case intent.TypeLongTermForecast:
		return "/api/forecast/long-term", q, nil
	case intent.TypeKPIQuery:
		return "/api/analytics/kpi", q, nil
	case intent.TypeBaselinePrediction:
		return "/api/analytics/baseline", q, nil
	default:
		return "", nil, fmt.Errorf("intent type %q is not dispatchable", in.Type)
	}
}

func encodeTimeRange(q url.Values, tr *intent.TimeRange) {
	if tr == nil {
		return
	}
	if tr.IsNamed() {
		q.Set("range", tr.Named)
		return
	}
	q.Set("amount", strconv.Itoa(tr.Amount))
	q.Set("unit", string(tr.Unit))
	q.Set("relative", string(tr.Relative))
}

// get performs one GET with retries and exponential backoff. A context
// already past its deadline returns immediately instead of burning the
// remaining attempts.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, errors.NewAnalyticsTimeoutError()
		default:
		}

		body, retryable, err := c.do(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}

		c.logger.Warn("analytics call failed, backing off", map[string]interface{}{
			"endpoint": endpoint,
			"attempt":  attempt,
			"error":    err.Error(),
		})

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, errors.NewAnalyticsTimeoutError()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return nil, errors.NewAnalyticsUnavailableError(lastErr)
}

// do runs one request. The second return value reports whether the failure
// is worth retrying: network errors and 5xx are, 4xx is not.
func (c *Client) do(ctx context.Context, endpoint string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("analytics API returned %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("analytics API returned %d", resp.StatusCode)
	}
}
