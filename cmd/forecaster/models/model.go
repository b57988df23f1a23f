// Package models builds the forecaster's CPU and storage predictors from configuration.
package models

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/demandcast/cmd/forecaster/config"
	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/httpx"
	"github.com/HatiCode/demandcast/pkg/models"
)

// Definition describes one predictor.
type Definition struct {
	Kind   string // linear, byom or baseline
	Target string // usage_cpu or usage_storage
	Path   string // linear artifact
	URL    string // inference service endpoint

	// Features is the byom feature order. When empty it is read from the
	// service's metadata document with a GET on URL.
	Features     []string
	MetadataPath string

	// Timeout bounds the metadata fetch and every prediction request.
	Timeout time.Duration
}

// New creates a predictor from def.
func New(ctx context.Context, def Definition, logger *slog.Logger) (models.Predictor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch def.Kind {
	case "linear":
		m, err := models.LoadLinearModel(def.Path)
		if err != nil {
			return nil, fmt.Errorf("%s model: %w", def.Target, err)
		}
		logger.Info("initializing linear model",
			"target", def.Target,
			"name", m.Name(),
			"path", def.Path,
			"features", len(m.FeatureNames()),
		)
		return m, nil

	case "byom":
		timeout := def.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client := httpx.NewClient(timeout)

		features := def.Features
		if len(features) == 0 {
			fetchCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var err error
			features, err = models.FetchFeatureNames(fetchCtx, client, def.URL, def.MetadataPath)
			if err != nil {
				return nil, fmt.Errorf("%s model: %w", def.Target, err)
			}
		}
		logger.Info("initializing BYOM model",
			"target", def.Target,
			"url", def.URL,
			"features", len(features),
			"timeout", timeout,
		)
		return models.NewRemoteModel(def.URL, "byom-"+def.Target, features, models.WithHTTPClient(client)), nil

	case "baseline":
		logger.Info("initializing baseline model", "target", def.Target)
		return models.NewBaselineModel(def.Target), nil

	default:
		return nil, fmt.Errorf("invalid model type %q for %s", def.Kind, def.Target)
	}
}

// FromConfig creates the CPU and storage predictors.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cpu, storage models.Predictor, err error) {
	cpu, err = New(ctx, Definition{
		Kind:         cfg.CPUModel,
		Target:       forecast.TargetCPU,
		Path:         cfg.CPUModelPath,
		URL:          cfg.CPUModelURL,
		Features:     config.SplitList(cfg.CPUModelFeatures),
		MetadataPath: cfg.ModelMetadataPath,
		Timeout:      cfg.ModelTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	storage, err = New(ctx, Definition{
		Kind:         cfg.StorageModel,
		Target:       forecast.TargetStorage,
		Path:         cfg.StorageModelPath,
		URL:          cfg.StorageModelURL,
		Features:     config.SplitList(cfg.StorageModelFeatures),
		MetadataPath: cfg.ModelMetadataPath,
		Timeout:      cfg.ModelTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	return cpu, storage, nil
}
