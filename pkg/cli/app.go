package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/gridpulse/pkg/config"
	"github.com/mchmarny/gridpulse/pkg/data"
	"github.com/mchmarny/gridpulse/pkg/logging"
	"github.com/mchmarny/gridpulse/pkg/metrics"
	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "gridpulse"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat = formatJSON

	stdout io.Writer = os.Stdout

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	logLevelFlag = &urfave.StringFlag{
		Name:  "log-level",
		Usage: "Log level [debug, info, warn, error]",
		Value: "info",
	}

	configDirFlag = &urfave.StringFlag{
		Name:  "config",
		Usage: "Config directory (default: $HOME/.gridpulse)",
	}

	dbFlag = &urfave.StringFlag{
		Name:  "db",
		Usage: "Result store: SQLite file path or postgres:// URL (overrides config)",
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	workersFlag = &urfave.IntFlag{
		Name:  "workers",
		Usage: "Number of regions processed in parallel (overrides config)",
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Dir     string
	Config  *config.Config
	Metrics *metrics.Registry

	db *sqlx.DB
}

// store opens the result store on first use.
func (a *appConfig) store(ctx context.Context) (*sqlx.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := data.Open(ctx, a.Config.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *appConfig) close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 appName,
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Grid stress scoring and price driver attribution over regional market panels",
		Writer:               stdout,
		Flags: []urfave.Flag{
			debugFlag,
			logLevelFlag,
			configDirFlag,
			dbFlag,
			formatFlag,
			workersFlag,
		},
		Commands: []*urfave.Command{
			stressCmd,
			attributeCmd,
			runsCmd,
			showCmd,
			serverCmd,
		},
		Before: func(c *urfave.Context) error {
			level := c.String(logLevelFlag.Name)
			if c.Bool(debugFlag.Name) {
				level = "debug"
			}
			logging.SetDefaultCLILogger(level)

			switch f := c.String(formatFlag.Name); f {
			case formatJSON:
				outputFormat = formatJSON
			case formatYAML, "yml":
				outputFormat = formatYAML
			default:
				return fmt.Errorf("unsupported output format: %s", f)
			}

			dir := c.String(configDirFlag.Name)
			if dir == "" {
				home, _, err := config.GetOrCreateHomeDir(appName)
				if err != nil {
					return fmt.Errorf("resolving config dir: %w", err)
				}
				dir = home
			}

			cfg, err := config.Load(dir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if c.IsSet(dbFlag.Name) {
				cfg.Store.DSN = c.String(dbFlag.Name)
			}
			if c.IsSet(workersFlag.Name) {
				cfg.Workers = c.Int(workersFlag.Name)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			slog.Debug("config loaded", "dir", dir, "workers", cfg.Workers)

			c.App.Metadata[appConfigKey] = &appConfig{
				Dir:     dir,
				Config:  cfg,
				Metrics: metrics.NewRegistry(),
			}
			return nil
		},
		After: func(c *urfave.Context) error {
			if cfg, ok := c.App.Metadata[appConfigKey].(*appConfig); ok {
				cfg.close()
			}
			return nil
		},
	}
}

func encode(v any) error {
	if outputFormat == formatYAML {
		e := yaml.NewEncoder(stdout)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
