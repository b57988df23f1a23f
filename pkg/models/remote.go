package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// RemoteModel delegates predictions to an external inference service, so any
// trained model (scikit-learn, XGBoost, ...) can be served next to the
// forecaster as long as it implements this HTTP contract:
//
//	POST <endpoint>
//	{"model": "<name>", "feature_names": [...], "features": [{"month": 3, ...}, ...]}
//
//	200 OK
//	{"values": [41.7, ...]}
//
// The feature order is fixed at construction, either from configuration or
// from the service's metadata document (see FetchFeatureNames).
type RemoteModel struct {
	endpoint     string
	name         string
	featureNames []string
	client       *http.Client
}

type remoteRequest struct {
	Model        string       `json:"model"`
	FeatureNames []string     `json:"feature_names"`
	Features     []FeatureRow `json:"features"`
}

// RemoteOption configures a RemoteModel.
type RemoteOption func(*RemoteModel)

// WithHTTPClient replaces the default client, whose timeout is 30s.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(m *RemoteModel) {
		if client != nil {
			m.client = client
		}
	}
}

// NewRemoteModel creates a predictor backed by the service at endpoint.
func NewRemoteModel(endpoint, name string, featureNames []string, opts ...RemoteOption) *RemoteModel {
	names := make([]string, len(featureNames))
	copy(names, featureNames)

	m := &RemoteModel{
		endpoint:     endpoint,
		name:         name,
		featureNames: names,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the model identifier.
func (m *RemoteModel) Name() string {
	return m.name
}

// FeatureNames returns the ordered training features.
func (m *RemoteModel) FeatureNames() []string {
	out := make([]string, len(m.featureNames))
	copy(out, m.featureNames)
	return out
}

// Predict sends rows to the inference service.
func (m *RemoteModel) Predict(ctx context.Context, rows []FeatureRow) ([]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("remote: rows cannot be empty")
	}
	for i, row := range rows {
		if err := CheckRow(m.featureNames, row); err != nil {
			return nil, fmt.Errorf("remote: row %d: %w", i, err)
		}
	}

	body, err := json.Marshal(remoteRequest{
		Model:        m.name,
		FeatureNames: m.featureNames,
		Features:     rows,
	})
	if err != nil {
		return nil, fmt.Errorf("remote: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("remote: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(respBody) > 1024 {
			respBody = respBody[:1024]
		}
		return nil, fmt.Errorf("remote: http %d: %s", resp.StatusCode, string(respBody))
	}

	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("remote: response is not valid JSON")
	}

	values := gjson.GetBytes(respBody, "values")
	if !values.IsArray() {
		return nil, fmt.Errorf("remote: response has no values array")
	}

	arr := values.Array()
	if len(arr) != len(rows) {
		return nil, fmt.Errorf("remote: expected %d predictions, got %d", len(rows), len(arr))
	}

	out := make([]float64, len(arr))
	for i, v := range arr {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("remote: prediction %d is not a number", i)
		}
		out[i] = v.Float()
	}
	return out, nil
}

// FetchFeatureNames reads the ordered feature list from an inference
// service's metadata document, e.g. GET /model → {"feature_names": [...]}.
// path is a gjson path; empty means "feature_names".
func FetchFeatureNames(ctx context.Context, client *http.Client, url, path string) ([]string, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if path == "" {
		path = "feature_names"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch model metadata: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model metadata: http %d", resp.StatusCode)
	}

	result := gjson.GetBytes(body, path)
	if !result.IsArray() {
		return nil, fmt.Errorf("model metadata: %q is not an array", path)
	}

	names := make([]string, 0, len(result.Array()))
	for _, v := range result.Array() {
		if v.Type != gjson.String || v.Str == "" {
			return nil, fmt.Errorf("model metadata: feature names must be non-empty strings")
		}
		names = append(names, v.Str)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("model metadata: empty feature list")
	}
	return names, nil
}
