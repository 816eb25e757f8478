package cli

import (
	"fmt"

	"github.com/mchmarny/gridpulse/pkg/data"
	urfave "github.com/urfave/cli/v2"
)

const (
	queryResultLimitDefault = 500
	runListLimitDefault     = 20
)

var (
	runsLimitFlag = &urfave.IntFlag{
		Name:  "limit",
		Usage: "Limits number of runs returned",
		Value: runListLimitDefault,
	}

	queryLimitFlag = &urfave.IntFlag{
		Name:  "limit",
		Usage: "Limits number of result returned",
		Value: queryResultLimitDefault,
	}

	regionFlag = &urfave.StringFlag{
		Name:  "region",
		Usage: "Only results for this region",
	}

	flaggedFlag = &urfave.BoolFlag{
		Name:  "flagged",
		Usage: "Only high stress months",
	}

	runsCmd = &urfave.Command{
		Name:   "runs",
		Usage:  "List recorded computation runs, newest first",
		Action: cmdRuns,
		Flags: []urfave.Flag{
			runsLimitFlag,
		},
	}

	showCmd = &urfave.Command{
		Name:  "show",
		Usage: "Show persisted results",
		Subcommands: []*urfave.Command{
			{
				Name:   "stress",
				Usage:  "Stress composite results",
				Action: cmdShowStress,
				Flags: []urfave.Flag{
					regionFlag,
					flaggedFlag,
					queryLimitFlag,
				},
			},
			{
				Name:    "attribution",
				Aliases: []string{"attr"},
				Usage:   "Driver attribution results",
				Action:  cmdShowAttribution,
				Flags: []urfave.Flag{
					regionFlag,
				},
			},
		},
	}
)

func cmdRuns(c *urfave.Context) error {
	app := getConfig(c)
	db, err := app.store(c.Context)
	if err != nil {
		return err
	}

	list, err := data.GetRuns(c.Context, db, c.Int(runsLimitFlag.Name))
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	return encode(list)
}

func cmdShowStress(c *urfave.Context) error {
	app := getConfig(c)
	db, err := app.store(c.Context)
	if err != nil {
		return err
	}

	list, err := data.GetStressResults(c.Context, db, &data.StressFilter{
		Region:  c.String(regionFlag.Name),
		Flagged: c.Bool(flaggedFlag.Name),
		Limit:   c.Int(queryLimitFlag.Name),
	})
	if err != nil {
		return fmt.Errorf("querying stress results: %w", err)
	}
	return encode(list)
}

func cmdShowAttribution(c *urfave.Context) error {
	app := getConfig(c)
	db, err := app.store(c.Context)
	if err != nil {
		return err
	}

	list, err := data.GetAttributionResults(c.Context, db, c.String(regionFlag.Name))
	if err != nil {
		return fmt.Errorf("querying attribution results: %w", err)
	}
	return encode(list)
}
