package adapters

import (
	"encoding/json"
	"fmt"
)

// New creates a source based on kind and generic configuration map.
// This is the central extension point for adding new source types.
//
// Supported kinds:
//   - "csv": CSV file source (keys: path, region)
//   - "http": Generic HTTP source (keys: url, rowsPath, headers, region)
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string) (Source, error) {
	switch kind {
	case "csv":
		return newCSV(config)
	case "http":
		return newHTTP(config)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be csv or http)", kind)
	}
}

// newCSV creates a CSV source from generic config.
func newCSV(config map[string]string) (Source, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("csv source requires 'path' config")
	}

	return &CSVSource{
		Path:   path,
		Region: config["region"],
	}, nil
}

// newHTTP creates a generic HTTP source from generic config.
func newHTTP(config map[string]string) (Source, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http source requires 'url' config")
	}

	rowsPath := config["rowsPath"]
	if rowsPath == "" {
		rowsPath = DefaultRowsPath
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	return &HTTPSource{
		URL:      url,
		Headers:  headers,
		RowsPath: rowsPath,
		Region:   config["region"],
	}, nil
}
