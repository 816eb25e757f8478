package cli

import (
	"fmt"
	"log/slog"

	"github.com/mchmarny/gridpulse/pkg/config"
	"github.com/mchmarny/gridpulse/pkg/data"
	"github.com/mchmarny/gridpulse/pkg/metrics"
	"github.com/mchmarny/gridpulse/pkg/stress"
	urfave "github.com/urfave/cli/v2"
)

var (
	driversFlag = &urfave.StringFlag{
		Name:     "drivers",
		Usage:    "Daily drivers dataset (CSV or XLSX, local path or http(s) URL)",
		Required: true,
	}

	congestionFlag = &urfave.StringFlag{
		Name:     "congestion",
		Usage:    "Monthly LMP congestion dataset (CSV or XLSX, local path or http(s) URL)",
		Required: true,
	}

	curtailmentFlag = &urfave.StringFlag{
		Name:     "curtailment",
		Usage:    "Monthly renewables curtailment dataset (CSV or XLSX, local path or http(s) URL)",
		Required: true,
	}

	thresholdFlag = &urfave.Float64Flag{
		Name:  "threshold",
		Usage: "Composite score at or above which a month is flagged (overrides config)",
	}

	baselineFlag = &urfave.StringFlag{
		Name:  "baseline",
		Usage: "Curtailment scenario joined into the panel (overrides config)",
	}

	monthsFlag = &urfave.StringFlag{
		Name:  "months",
		Usage: "Season months, comma separated (e.g. 6,7,8,9), or 'all' (overrides config)",
	}

	outFlag = &urfave.StringFlag{
		Name:  "out",
		Usage: "Write the result table to this CSV file",
	}

	noSaveFlag = &urfave.BoolFlag{
		Name:  "no-save",
		Usage: "Do not persist results to the result store",
	}

	stressCmd = &urfave.Command{
		Name:   "stress",
		Usage:  "Score monthly grid stress per region from cdd, congestion and curtailment",
		Action: cmdStress,
		Flags: []urfave.Flag{
			driversFlag,
			congestionFlag,
			curtailmentFlag,
			thresholdFlag,
			baselineFlag,
			monthsFlag,
			outFlag,
			noSaveFlag,
		},
	}
)

type stressReport struct {
	Run     *data.Run         `json:"run,omitempty" yaml:"run,omitempty"`
	Rows    int               `json:"rows" yaml:"rows"`
	Flagged int               `json:"flagged" yaml:"flagged"`
	Output  string            `json:"output,omitempty" yaml:"output,omitempty"`
	Regions []*stress.Summary `json:"regions" yaml:"regions"`
}

func stressConfig(c *urfave.Context, cfg *config.Config) (*stress.Config, error) {
	sc := &stress.Config{
		HighStressThreshold: cfg.Stress.HighStressThreshold,
		BaselineScenario:    cfg.Stress.BaselineScenario,
		SeasonMonths:        append([]int(nil), cfg.Stress.SeasonMonths...),
		Workers:             cfg.Workers,
	}
	if c.IsSet(thresholdFlag.Name) {
		sc.HighStressThreshold = c.Float64(thresholdFlag.Name)
	}
	if c.IsSet(baselineFlag.Name) {
		sc.BaselineScenario = c.String(baselineFlag.Name)
	}
	if c.IsSet(monthsFlag.Name) {
		months, err := parseMonths(c.String(monthsFlag.Name))
		if err != nil {
			return nil, err
		}
		sc.SeasonMonths = months
	}
	return sc, nil
}

func cmdStress(c *urfave.Context) error {
	app := getConfig(c)
	ctx := c.Context

	cfg, err := stressConfig(c, app.Config)
	if err != nil {
		return err
	}

	loader := &inputLoader{}
	defer loader.close()

	src := &stress.Sources{}
	if src.Drivers, err = loader.load(ctx, "drivers", c.String(driversFlag.Name)); err != nil {
		return err
	}
	if src.Congestion, err = loader.load(ctx, "congestion", c.String(congestionFlag.Name)); err != nil {
		return err
	}
	if src.Curtailment, err = loader.load(ctx, "curtailment", c.String(curtailmentFlag.Name)); err != nil {
		return err
	}

	run := data.NewRun(data.RunKindStress)
	timer := app.Metrics.StartRun(metrics.ComponentStress)
	rs, err := stress.Run(ctx, src, cfg)
	if err := timer.Stop(err); err != nil {
		return fmt.Errorf("scoring stress: %w", err)
	}

	summaries := stress.Summarize(rs)
	flagged := stress.Flagged(rs)
	app.Metrics.RecordRegions(metrics.ComponentStress, metrics.StatusScored, len(summaries))
	app.Metrics.SetHighStressMonths(flagged)
	slog.Info("stress scored", "regions", len(summaries), "months", len(rs), "flagged", flagged)

	out := c.String(outFlag.Name)
	if err := writeResults(out, stress.Columns, rs); err != nil {
		return err
	}

	rep := &stressReport{
		Rows:    len(rs),
		Flagged: flagged,
		Output:  out,
		Regions: summaries,
	}

	if !c.Bool(noSaveFlag.Name) {
		db, err := app.store(ctx)
		if err != nil {
			return err
		}
		if err := data.SaveStressResults(ctx, db, run, rs); err != nil {
			return fmt.Errorf("saving stress results: %w", err)
		}
		rep.Run = run
	}

	return encode(rep)
}
