package cli

import (
	"fmt"
	"log/slog"

	"github.com/mchmarny/gridpulse/pkg/attribution"
	"github.com/mchmarny/gridpulse/pkg/data"
	"github.com/mchmarny/gridpulse/pkg/metrics"
	urfave "github.com/urfave/cli/v2"
)

const minObsFloor = 3

var (
	minObsFlag = &urfave.IntFlag{
		Name:  "min-obs",
		Usage: "Minimum complete rows for a region to be fit (overrides config)",
	}

	attributeCmd = &urfave.Command{
		Name:    "attribute",
		Aliases: []string{"attr"},
		Usage:   "Attribute regional power prices to natural gas and cooling demand",
		Action:  cmdAttribute,
		Flags: []urfave.Flag{
			driversFlag,
			minObsFlag,
			outFlag,
			noSaveFlag,
		},
	}
)

type attributionReport struct {
	Run     *data.Run              `json:"run,omitempty" yaml:"run,omitempty"`
	Output  string                 `json:"output,omitempty" yaml:"output,omitempty"`
	Results []*attribution.Result  `json:"results" yaml:"results"`
	Skipped []*attribution.Skipped `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func cmdAttribute(c *urfave.Context) error {
	app := getConfig(c)
	ctx := c.Context

	cfg := &attribution.Config{
		MinObservations: app.Config.Attribution.MinObservations,
		Workers:         app.Config.Workers,
	}
	if c.IsSet(minObsFlag.Name) {
		cfg.MinObservations = c.Int(minObsFlag.Name)
		if cfg.MinObservations < minObsFloor {
			return fmt.Errorf("min-obs must be at least %d, got %d", minObsFloor, cfg.MinObservations)
		}
	}

	loader := &inputLoader{}
	defer loader.close()

	drivers, err := loader.load(ctx, "drivers", c.String(driversFlag.Name))
	if err != nil {
		return err
	}

	run := data.NewRun(data.RunKindAttribution)
	timer := app.Metrics.StartRun(metrics.ComponentAttribution)
	rep, err := attribution.Run(ctx, drivers, cfg)
	if err := timer.Stop(err); err != nil {
		return fmt.Errorf("attributing prices: %w", err)
	}

	app.Metrics.RecordRegions(metrics.ComponentAttribution, metrics.StatusFitted, len(rep.Results))
	app.Metrics.RecordRegions(metrics.ComponentAttribution, metrics.StatusSkipped, len(rep.Skipped))
	slog.Info("prices attributed", "fitted", len(rep.Results), "skipped", len(rep.Skipped))

	out := c.String(outFlag.Name)
	if err := writeResults(out, attribution.Columns, rep.Results); err != nil {
		return err
	}

	res := &attributionReport{
		Output:  out,
		Results: rep.Results,
		Skipped: rep.Skipped,
	}

	if !c.Bool(noSaveFlag.Name) {
		db, err := app.store(ctx)
		if err != nil {
			return err
		}
		if err := data.SaveAttributionResults(ctx, db, run, rep); err != nil {
			return fmt.Errorf("saving attribution results: %w", err)
		}
		res.Run = run
	}

	return encode(res)
}
