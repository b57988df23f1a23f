package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/HatiCode/demandcast/pkg/adapters"
	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/history"
	"github.com/HatiCode/demandcast/pkg/models"
)

func dataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data",
			Aliases: []string{"d"},
			Usage:   "Path to the feature-engineered CSV dataset",
		},
		&cli.StringFlag{
			Name:  "data-url",
			Usage: "Load the dataset from a JSON endpoint instead of a CSV file",
		},
		&cli.StringFlag{
			Name:  "rows-path",
			Value: adapters.DefaultRowsPath,
			Usage: "gjson path of the row array (--data-url)",
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "Only use dataset rows of this region",
		},
	}
}

func modelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "model",
		Aliases:  []string{"m"},
		Usage:    `Linear model artifact (JSON) or "baseline"`,
		Required: true,
	}
}

func targetFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "target",
		Aliases: []string{"t"},
		Value:   forecast.TargetCPU,
		Usage:   "Metric to predict (usage_cpu, usage_storage)",
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "table",
		Usage:   "Output format (table, json)",
	}
}

// =============================================================================
// FORECAST COMMAND
// =============================================================================

func forecastCommand() *cli.Command {
	return &cli.Command{
		Name:  "forecast",
		Usage: "Forecast a metric for the days after the dataset",
		Flags: append(dataFlags(),
			modelFlag(),
			targetFlag(),
			formatFlag(),
			&cli.IntFlag{
				Name:  "days",
				Value: 7,
				Usage: "Number of days to forecast",
			},
			&cli.BoolFlag{
				Name:  "show-features",
				Usage: "Include the reconstructed feature row of each day",
			},
		),
		Action: runForecast,
	}
}

type forecastDay struct {
	Day      int                `json:"day"`
	Value    float64            `json:"value"`
	Features map[string]float64 `json:"features,omitempty"`
}

type forecastOutput struct {
	Target string        `json:"target"`
	Model  string        `json:"model"`
	Days   []forecastDay `json:"days"`
}

func runForecast(c *cli.Context) error {
	ctx := c.Context
	log := newLogger(c)

	target := c.String("target")
	if !forecast.ValidTarget(target) {
		return fmt.Errorf("invalid target %q (must be one of %s)", target, strings.Join(forecast.Targets, ", "))
	}
	days := c.Int("days")
	if days < 1 {
		return fmt.Errorf("--days must be >= 1, got %d", days)
	}

	ds, err := loadDataset(ctx, c)
	if err != nil {
		return err
	}
	p, err := loadPredictor(c.String("model"), target)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := forecast.NewLoop(log, nil).Run(ctx, ds, p, target, days)
	if err != nil {
		return fmt.Errorf("forecast failed: %w", err)
	}
	log.Info("forecast complete", "model", p.Name(), "days", days, "duration_ms", time.Since(start).Milliseconds())

	out := forecastOutput{Target: target, Model: p.Name(), Days: make([]forecastDay, len(res.Values))}
	for i, v := range res.Values {
		out.Days[i] = forecastDay{Day: i + 1, Value: v}
		if c.Bool("show-features") {
			out.Days[i].Features = res.Rows[i].Map()
		}
	}

	switch c.String("format") {
	case "json":
		return writeJSON(c.App.Writer, out)
	case "table":
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "DAY\t%s\n", strings.ToUpper(target))
		for _, d := range out.Days {
			fmt.Fprintf(tw, "%d\t%.2f\n", d.Day, d.Value)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("invalid format %q (must be table or json)", c.String("format"))
	}
}

// =============================================================================
// PREDICT COMMAND
// =============================================================================

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Predict one day from a partial feature row completed from the dataset",
		Flags: append(dataFlags(),
			modelFlag(),
			targetFlag(),
			&cli.StringSliceFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Feature value as name=value (repeatable)",
			},
		),
		Action: runPredict,
	}
}

type predictOutput struct {
	Prediction    float64            `json:"prediction"`
	InputFeatures map[string]float64 `json:"input_features"`
}

func runPredict(c *cli.Context) error {
	ctx := c.Context

	input, err := parseInputs(c.StringSlice("input"))
	if err != nil {
		return err
	}
	if len(input) == 0 {
		return fmt.Errorf("at least one --input is required")
	}

	ds, err := loadDataset(ctx, c)
	if err != nil {
		return err
	}
	p, err := loadPredictor(c.String("model"), c.String("target"))
	if err != nil {
		return err
	}

	row, err := features.NewCompleter().CompleteRow(input, ds, p.FeatureNames())
	if err != nil {
		return err
	}
	v, err := models.PredictOne(ctx, p, row)
	if err != nil {
		return fmt.Errorf("predict failed: %w", err)
	}

	return writeJSON(c.App.Writer, predictOutput{Prediction: v, InputFeatures: row.Map()})
}

// parseInputs parses name=value pairs.
func parseInputs(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --input %q (want name=value)", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --input %q: %w", pair, err)
		}
		out[name] = v
	}
	return out, nil
}

// =============================================================================
// FEATURES COMMAND
// =============================================================================

func featuresCommand() *cli.Command {
	return &cli.Command{
		Name:  "features",
		Usage: "Show how each model feature is reconstructed",
		Flags: []cli.Flag{
			modelFlag(),
			targetFlag(),
		},
		Action: runFeatures,
	}
}

func runFeatures(c *cli.Context) error {
	p, err := loadPredictor(c.String("model"), c.String("target"))
	if err != nil {
		return err
	}
	if _, err := features.NewReconstructor(p.FeatureNames()); err != nil {
		return err
	}

	reg := features.DefaultRegistry()
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "FEATURE\tSTAGE\tHISTORY\tDEPENDS ON\n")
	for _, name := range p.FeatureNames() {
		stage, minHistory, deps := "dataset", 0, "-"
		if rule, ok := reg.Lookup(name); ok {
			stage = rule.Stage.String()
			minHistory = rule.MinHistory
			if len(rule.Deps) > 0 {
				sorted := append([]string(nil), rule.Deps...)
				sort.Strings(sorted)
				deps = strings.Join(sorted, ",")
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, stage, minHistory, deps)
	}
	return tw.Flush()
}

// =============================================================================
// HELPERS
// =============================================================================

func loadDataset(ctx context.Context, c *cli.Context) (*history.Dataset, error) {
	var (
		src adapters.Source
		err error
	)
	switch {
	case c.String("data-url") != "":
		src, err = adapters.New("http", map[string]string{
			"url":      c.String("data-url"),
			"rowsPath": c.String("rows-path"),
			"region":   c.String("region"),
		})
	case c.String("data") != "":
		src, err = adapters.New("csv", map[string]string{
			"path":   c.String("data"),
			"region": c.String("region"),
		})
	default:
		return nil, fmt.Errorf("--data or --data-url is required")
	}
	if err != nil {
		return nil, err
	}
	return src.Load(ctx)
}

func loadPredictor(model, target string) (models.Predictor, error) {
	if model == "baseline" {
		return models.NewBaselineModel(target), nil
	}
	return models.LoadLinearModel(model)
}

func newLogger(c *cli.Context) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	w := c.App.ErrWriter
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
