package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/demandcast/pkg/history"
)

// DefaultRowsPath is the gjson path of the row array when RowsPath is empty.
const DefaultRowsPath = "rows"

// HTTPSource is a generic HTTP source that can call any REST API endpoint
// and extract dataset rows using a gjson path expression.
//
// The path must resolve to an array of JSON objects, oldest first. Numeric
// and boolean fields become record columns; strings are ignored except the
// region field used by the Region filter.
//
// Example configuration for a warehouse export API:
//
//	source := &HTTPSource{
//	    URL: "https://api.example.com/usage/daily",
//	    Headers: map[string]string{"Authorization": "Bearer token123"},
//	    RowsPath: "data.rows",
//	    Region: "East US",
//	}
type HTTPSource struct {
	// URL is the endpoint to call (required)
	URL string

	// Headers are custom HTTP headers to include in the request.
	Headers map[string]string

	// RowsPath is the gjson path to the row array. Defaults to "rows".
	RowsPath string

	// Region optionally filters rows on their region field.
	Region string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (h *HTTPSource) Name() string { return "http" }

// Load implements Source. It calls the configured endpoint and converts the
// rows found at RowsPath.
func (h *HTTPSource) Load(ctx context.Context) (*history.Dataset, error) {
	if h.URL == "" {
		return nil, errors.New("http source: URL is required")
	}

	path := h.RowsPath
	if path == "" {
		path = DefaultRowsPath
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(respBody) {
		return nil, errors.New("http source: response is not valid JSON")
	}

	rows := gjson.GetBytes(respBody, path)
	if !rows.Exists() {
		return nil, fmt.Errorf("rows path %q not found in response", path)
	}
	if !rows.IsArray() {
		return nil, fmt.Errorf("rows path %q is not an array", path)
	}

	records, err := h.toRecords(rows.Array())
	if err != nil {
		return nil, err
	}
	return buildDataset("http", records)
}

func (h *HTTPSource) toRecords(rows []gjson.Result) ([]history.Record, error) {
	records := make([]history.Record, 0, len(rows))
	for i, row := range rows {
		if !row.IsObject() {
			return nil, fmt.Errorf("row %d is not an object", i)
		}
		if h.Region != "" && row.Get(RegionColumn).String() != h.Region {
			continue
		}

		values := make(map[string]float64)
		row.ForEach(func(key, value gjson.Result) bool {
			switch value.Type {
			case gjson.Number:
				values[key.String()] = value.Float()
			case gjson.True:
				values[key.String()] = 1
			case gjson.False:
				values[key.String()] = 0
			}
			return true
		})
		records = append(records, history.NewRecord(values))
	}
	return records, nil
}
