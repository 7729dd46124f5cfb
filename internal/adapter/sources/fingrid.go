// fingridMultiAdapter: one API-key-authenticated client, page/pageSize
// pagination, and a per-dataset fetch loop shared across every series the
// group declares, all gated by the adapter's single rate limiter.
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
	"github.com/dag-upb/ts-arena-core/internal/duration"
)

func init() {
	adapter.RegisterMulti("FingridMultiDataSourcePlugin", newFingridMultiAdapter)
}

type fingridMultiAdapter struct {
	groupID  string
	schedule duration.Duration
	series   []adapter.SeriesDefinition

	httpClient *http.Client
	limiter    *adapter.RateLimiter
	baseURL    string
	apiKey     string
	pageSize   int
}

// newFingridMultiAdapter builds a Fingrid-shaped multi-series adapter.
// The API key comes from the "api_key" param or, failing that, the
// environment variable named by "api_key_env". Optional params: "base_url",
// "page_size", "rate_limit_per_minute" (Fingrid's published budget is
// 10/min).
func newFingridMultiAdapter(groupID, schedule string, params map[string]any, series []adapter.SeriesDefinition) (adapter.MultiSeriesAdapter, error) {
	apiKeyEnv, _ := params["api_key_env"].(string)
	if apiKeyEnv == "" {
		apiKeyEnv = "API_KEY_SOURCE_FINGRID"
	}
	apiKey, _ := params["api_key"].(string)
	if apiKey == "" {
		apiKey = os.Getenv(apiKeyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("fingrid multi adapter %s: no api key configured (set %s)", groupID, apiKeyEnv)
	}

	baseURL, _ := params["base_url"].(string)
	if baseURL == "" {
		baseURL = "https://data.fingrid.fi/api/datasets"
	}
	pageSize := 20000
	if v, ok := params["page_size"].(int); ok && v > 0 {
		pageSize = v
	}
	callsPerMinute := 10
	if v, ok := params["rate_limit_per_minute"].(int); ok && v > 0 {
		callsPerMinute = v
	}

	sched, err := duration.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("fingrid multi adapter %s: parse schedule: %w", groupID, err)
	}

	return &fingridMultiAdapter{
		groupID:    groupID,
		schedule:   sched,
		series:     series,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    adapter.NewRateLimiter(callsPerMinute),
		baseURL:    baseURL,
		apiKey:     apiKey,
		pageSize:   pageSize,
	}, nil
}

func (a *fingridMultiAdapter) GroupID() string            { return a.groupID }
func (a *fingridMultiAdapter) Schedule() duration.Duration { return a.schedule }

func (a *fingridMultiAdapter) SeriesDefinitions() []adapter.SeriesDefinition { return a.series }

type fingridRow struct {
	StartTime string      `json:"startTime"`
	Value     json.Number `json:"value"`
}

type fingridPage struct {
	Data       []fingridRow `json:"data"`
	Pagination struct {
		TotalPages int `json:"lastPage"`
	} `json:"pagination"`
}

// FetchHistoricalMulti fetches every series' dataset independently (one
// Fingrid "dataset" per series), sharing the adapter's single rate limiter
// across all of them.
func (a *fingridMultiAdapter) FetchHistoricalMulti(ctx context.Context, start, end time.Time) (adapter.MultiFetchResult, error) {
	result := make(adapter.MultiFetchResult, len(a.series))

	for _, def := range a.series {
		datasetID, _ := def.ExtractFilter["dataset_id"].(string)
		if datasetID == "" {
			continue
		}

		rows, err := adapter.Paginate(ctx, a.pageSize, func(ctx context.Context, offset, pageSize int) (adapter.Page[fingridRow], error) {
			if err := a.limiter.Wait(ctx); err != nil {
				return adapter.Page[fingridRow]{}, err
			}
			page := offset/pageSize + 1

			q := url.Values{}
			q.Set("startTime", start.UTC().Format(time.RFC3339))
			if !end.IsZero() {
				q.Set("endTime", end.UTC().Format(time.RFC3339))
			}
			q.Set("format", "json")
			q.Set("oneRowPerTimePeriod", "true")
			q.Set("page", strconv.Itoa(page))
			q.Set("pageSize", strconv.Itoa(pageSize))

			reqURL := fmt.Sprintf("%s/%s/data?%s", a.baseURL, datasetID, q.Encode())
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if err != nil {
				return adapter.Page[fingridRow]{}, err
			}
			req.Header.Set("x-api-key", a.apiKey)

			resp, err := a.httpClient.Do(req)
			if err != nil {
				return adapter.Page[fingridRow]{}, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return adapter.Page[fingridRow]{}, fmt.Errorf("fingrid: dataset %s request failed with status %d", datasetID, resp.StatusCode)
			}

			var decoded fingridPage
			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				return adapter.Page[fingridRow]{}, fmt.Errorf("fingrid: decode dataset %s: %w", datasetID, err)
			}
			total := decoded.Pagination.TotalPages * pageSize
			return adapter.Page[fingridRow]{Rows: decoded.Data, Total: total}, nil
		})
		if err != nil {
			return nil, apperr.AdapterFetch(fmt.Errorf("group %s dataset %s: %w", a.groupID, datasetID, err))
		}

		samples := make([]adapter.Sample, 0, len(rows))
		for _, row := range rows {
			ts, err := time.Parse(time.RFC3339, row.StartTime)
			if err != nil {
				continue
			}
			value, err := row.Value.Float64()
			if err != nil {
				continue
			}
			samples = append(samples, adapter.Sample{TS: ts, Value: value})
		}
		result[def.UniqueID] = samples
	}

	return result, nil
}
