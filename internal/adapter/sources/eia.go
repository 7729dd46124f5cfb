// Package sources provides concrete source adapters, registered against
// internal/adapter's compile-time registry so the sources YAML file's
// `class` tag resolves to a real factory.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/dag-upb/ts-arena-core/internal/adapter"
	"github.com/dag-upb/ts-arena-core/internal/apperr"
)

func init() {
	adapter.RegisterSingle("EIADataSourcePlugin", newEIAAdapter)
}

type eiaAdapter struct {
	md         adapter.Metadata
	httpClient *http.Client
	limiter    *adapter.RateLimiter

	baseURL  string
	apiKey   string
	facets   map[string][]string
	pageSize int
}

// newEIAAdapter builds an EIA-shaped single-series adapter from the
// default_params bag. Required params: "sub_id" (EIA routeset path segment).
// Optional: "api_key_env" (environment variable name holding the key,
// default API_KEY_SOURCE_EIA; that variable must be set), "base_url",
// "facets" (map[string][]string), "page_size", "rate_limit_per_minute".
func newEIAAdapter(md adapter.Metadata, params map[string]any) (adapter.SingleSeriesAdapter, error) {
	apiKeyEnv, _ := params["api_key_env"].(string)
	if apiKeyEnv == "" {
		apiKeyEnv = "API_KEY_SOURCE_EIA"
	}
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("eia adapter %s: environment variable %s is not set", md.UniqueID, apiKeyEnv)
	}

	baseURL, _ := params["base_url"].(string)
	if baseURL == "" {
		baseURL = "https://api.eia.gov/v2/electricity/rto/"
	}
	subID, _ := params["sub_id"].(string)

	pageSize := 5000
	if v, ok := params["page_size"].(int); ok && v > 0 {
		pageSize = v
	}
	callsPerMinute := 60
	if v, ok := params["rate_limit_per_minute"].(int); ok && v > 0 {
		callsPerMinute = v
	}

	facets := map[string][]string{}
	if raw, ok := params["facets"].(map[string]any); ok {
		for k, v := range raw {
			if list, ok := v.([]any); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						facets[k] = append(facets[k], s)
					}
				}
			}
		}
	}

	return &eiaAdapter{
		md:         md,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    adapter.NewRateLimiter(callsPerMinute),
		baseURL:    baseURL + subID + "/data/",
		apiKey:     apiKey,
		facets:     facets,
		pageSize:   pageSize,
	}, nil
}

func (a *eiaAdapter) Metadata() adapter.Metadata { return a.md }

type eiaRow struct {
	Period string      `json:"period"`
	Value  json.Number `json:"value"`
}

type eiaResponse struct {
	Response struct {
		Data  []eiaRow `json:"data"`
		Total string   `json:"total"`
	} `json:"response"`
}

// FetchHistorical paginates the EIA v2 "routeset/data" endpoint via
// offset/length and converts each row into a Sample.
func (a *eiaAdapter) FetchHistorical(ctx context.Context, start, end time.Time) (adapter.FetchResult, error) {
	rows, err := adapter.Paginate(ctx, a.pageSize, func(ctx context.Context, offset, pageSize int) (adapter.Page[eiaRow], error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return adapter.Page[eiaRow]{}, err
		}

		q := url.Values{}
		q.Set("api_key", a.apiKey)
		q.Set("start", start.UTC().Format("2006-01-02T15"))
		if !end.IsZero() {
			q.Set("end", end.UTC().Format("2006-01-02T15"))
		}
		q.Add("data[]", "value")
		q.Set("length", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(offset))
		for facet, values := range a.facets {
			for _, v := range values {
				q.Add(fmt.Sprintf("facets[%s][]", facet), v)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+q.Encode(), nil)
		if err != nil {
			return adapter.Page[eiaRow]{}, err
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return adapter.Page[eiaRow]{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return adapter.Page[eiaRow]{}, fmt.Errorf("eia: request failed with status %d", resp.StatusCode)
		}

		var decoded eiaResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return adapter.Page[eiaRow]{}, fmt.Errorf("eia: decode response: %w", err)
		}
		total, _ := strconv.Atoi(decoded.Response.Total)
		return adapter.Page[eiaRow]{Rows: decoded.Response.Data, Total: total}, nil
	})
	if err != nil {
		return adapter.FetchResult{}, apperr.AdapterFetch(fmt.Errorf("%s: %w", a.md.UniqueID, err))
	}

	samples := make([]adapter.Sample, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339, normalizeEIAPeriod(row.Period))
		if err != nil {
			continue
		}
		value, err := row.Value.Float64()
		if err != nil {
			continue
		}
		samples = append(samples, adapter.Sample{TS: ts, Value: value})
	}
	return adapter.FetchResult{Data: samples}, nil
}

// normalizeEIAPeriod turns EIA's "2024-01-01T05" hourly period strings into
// a value time.Parse(time.RFC3339, ...) accepts.
func normalizeEIAPeriod(period string) string {
	if len(period) == 13 && period[10] == 'T' {
		return period + ":00:00Z"
	}
	if len(period) == 10 {
		return period + "T00:00:00Z"
	}
	return period
}
