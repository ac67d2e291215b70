package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/agenticsorg/sparc-bench/pkg/service"
	"github.com/pkg/errors"
)

const (
	datasetsServerBaseURL = "https://datasets-server.huggingface.co"
	userAgent             = "sparc-bench/1.0"
	pageSize              = 100
)

// HTTPClient lets tests inject canned responses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HFClient pages rows out of the HuggingFace datasets-server REST API.
type HFClient struct {
	http    HTTPClient
	baseURL string
}

func NewHFClient(client HTTPClient) *HFClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HFClient{http: client, baseURL: datasetsServerBaseURL}
}

// RowsPage is one page of the /rows response.
type RowsPage struct {
	Rows []struct {
		Row map[string]interface{} `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// FetchRows retrieves one page of dataset rows.
func (c *HFClient) FetchRows(ctx context.Context, dataset, config, split string, offset, length int) (*RowsPage, error) {
	params := url.Values{}
	params.Set("dataset", dataset)
	params.Set("config", config)
	params.Set("split", split)
	params.Set("offset", fmt.Sprintf("%d", offset))
	params.Set("length", fmt.Sprintf("%d", length))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rows?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build datasets-server request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch dataset rows")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("datasets-server returned %d for split '%s'", resp.StatusCode, split)
	}

	var page RowsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, errors.Wrap(err, "decode dataset rows")
	}
	return &page, nil
}

// LoadDataset pages the requested split into the store, falling back to the
// test and train splits when the requested one is unavailable.
func (c *HFClient) LoadDataset(ctx context.Context, svc *service.TaskService, logger service.Logger,
	dataset, config, split string, maxRows int) (Stats, error) {
	var stats Stats
	var lastErr error
	for _, candidate := range splitCandidates(split) {
		first, err := c.FetchRows(ctx, dataset, config, candidate, 0, pageSize)
		if err != nil {
			logger.Errorf("Split '%s' unavailable: %v", candidate, err)
			lastErr = err
			continue
		}
		logger.Infof("Loading dataset '%s' split '%s' (%d rows total)", dataset, candidate, first.NumRowsTotal)
		return c.loadSplit(ctx, svc, logger, dataset, config, candidate, first, maxRows)
	}
	return stats, errors.Wrapf(lastErr, "no usable split for dataset '%s'", dataset)
}

func (c *HFClient) loadSplit(ctx context.Context, svc *service.TaskService, logger service.Logger,
	dataset, config, split string, first *RowsPage, maxRows int) (Stats, error) {
	var stats Stats
	total := first.NumRowsTotal
	if maxRows > 0 && maxRows < total {
		total = maxRows
	}

	page := first
	offset := 0
	for {
		records := make([]map[string]interface{}, 0, len(page.Rows))
		for _, row := range page.Rows {
			if offset+len(records) >= total {
				break
			}
			records = append(records, row.Row)
		}
		pageStats, err := importRecords(records, svc, logger)
		stats.Loaded += pageStats.Loaded
		stats.Skipped += pageStats.Skipped
		if err != nil {
			return stats, err
		}

		offset += len(page.Rows)
		if offset >= total || len(page.Rows) == 0 {
			break
		}
		page, err = c.FetchRows(ctx, dataset, config, split, offset, pageSize)
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func splitCandidates(split string) []string {
	candidates := []string{}
	for _, s := range []string{split, "test", "train"} {
		if s == "" {
			continue
		}
		seen := false
		for _, c := range candidates {
			if c == s {
				seen = true
				break
			}
		}
		if !seen {
			candidates = append(candidates, s)
		}
	}
	return candidates
}
