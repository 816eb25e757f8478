package attribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mchmarny/gridpulse/pkg/panel"
)

const (
	// DefaultMinObservations is the smallest per-region sample that is fit.
	DefaultMinObservations = 30

	ColPrice  = "avg_price_usd_mwh"
	ColNatGas = "natgas_monthly"
	ColCDD    = "cdd"
)

// Columns is the output column contract, in order.
var Columns = []string{
	"region", "n_obs", "r2",
	"beta_intercept", "beta_natgas", "beta_cdd",
	"beta_natgas_std", "beta_cdd_std",
	"importance_natgas_pct", "importance_cdd_pct",
}

// Config holds the regressor policies.
type Config struct {
	MinObservations int `yaml:"min_observations" json:"min_observations"`
	Workers         int `yaml:"-" json:"-"`
}

// DefaultConfig returns the production regressor configuration.
func DefaultConfig() *Config {
	return &Config{MinObservations: DefaultMinObservations}
}

// Observation is one complete daily row for a region.
type Observation struct {
	Price  float64
	NatGas float64
	CDD    float64
}

// Result is the attribution of one region's price to natural gas and CDD.
type Result struct {
	Region              string   `json:"region" yaml:"region"`
	Observations        int      `json:"n_obs" yaml:"n_obs"`
	R2                  *float64 `json:"r2" yaml:"r2"`
	BetaIntercept       float64  `json:"beta_intercept" yaml:"beta_intercept"`
	BetaNatGas          float64  `json:"beta_natgas" yaml:"beta_natgas"`
	BetaCDD             float64  `json:"beta_cdd" yaml:"beta_cdd"`
	BetaNatGasStd       float64  `json:"beta_natgas_std" yaml:"beta_natgas_std"`
	BetaCDDStd          float64  `json:"beta_cdd_std" yaml:"beta_cdd_std"`
	ImportanceNatGasPct float64  `json:"importance_natgas_pct" yaml:"importance_natgas_pct"`
	ImportanceCDDPct    float64  `json:"importance_cdd_pct" yaml:"importance_cdd_pct"`
}

// Values implements panel.Row.
func (r *Result) Values() []string {
	return []string{
		r.Region,
		strconv.Itoa(r.Observations),
		panel.FormatNullable(r.R2),
		panel.FormatFloat(r.BetaIntercept),
		panel.FormatFloat(r.BetaNatGas),
		panel.FormatFloat(r.BetaCDD),
		panel.FormatFloat(r.BetaNatGasStd),
		panel.FormatFloat(r.BetaCDDStd),
		panel.FormatFloat(r.ImportanceNatGasPct),
		panel.FormatFloat(r.ImportanceCDDPct),
	}
}

// Skipped records a region left out for having too few complete rows.
type Skipped struct {
	Region       string `json:"region" yaml:"region"`
	Observations int    `json:"n_obs" yaml:"n_obs"`
}

// Report is the outcome of one attribution run.
type Report struct {
	Results []*Result  `json:"results" yaml:"results"`
	Skipped []*Skipped `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Collect validates the drivers table and returns complete observations
// per region. Rows missing the region, price, gas or CDD value are dropped.
func Collect(t *panel.Table) ([]panel.Group[Observation], error) {
	if t == nil {
		return nil, errors.New("drivers dataset required")
	}
	if err := t.Require(panel.ColRegion, panel.ColDate, ColPrice, ColNatGas, ColCDD); err != nil {
		return nil, err
	}

	type row struct {
		region string
		obs    Observation
	}
	rows := make([]row, 0, t.Len())
	dropped := 0
	for _, r := range t.Records {
		region := r.String(panel.ColRegion)
		price, okP := r.Float(ColPrice)
		gas, okG := r.Float(ColNatGas)
		cdd, okC := r.Float(ColCDD)
		if region == "" || !okP || !okG || !okC {
			dropped++
			continue
		}
		rows = append(rows, row{region: region, obs: Observation{Price: price, NatGas: gas, CDD: cdd}})
	}
	if dropped > 0 {
		slog.Debug("incomplete driver rows dropped", "rows", dropped)
	}

	byRegion := panel.GroupBy(rows, func(r row) string { return r.region })
	out := make([]panel.Group[Observation], len(byRegion))
	for i, g := range byRegion {
		obs := make([]Observation, len(g.Items))
		for j, r := range g.Items {
			obs[j] = r.obs
		}
		out[i] = panel.Group[Observation]{Key: g.Key, Items: obs}
	}
	return out, nil
}

// FitRegion fits one region. It returns nil when the region has fewer than
// the configured minimum of observations.
func FitRegion(region string, obs []Observation, minObs int) (*Result, error) {
	if len(obs) < minObs {
		return nil, nil
	}

	y := make([]float64, len(obs))
	gas := make([]float64, len(obs))
	cdd := make([]float64, len(obs))
	for i, o := range obs {
		y[i] = o.Price
		gas[i] = o.NatGas
		cdd[i] = o.CDD
	}

	f, err := OLS(y, [][]float64{gas, cdd})
	if err != nil {
		return nil, fmt.Errorf("error fitting region %s: %w", region, err)
	}

	return &Result{
		Region:              region,
		Observations:        len(obs),
		R2:                  f.R2,
		BetaIntercept:       f.Coefficients[0],
		BetaNatGas:          f.Coefficients[1],
		BetaCDD:             f.Coefficients[2],
		BetaNatGasStd:       f.Standardized[0],
		BetaCDDStd:          f.Standardized[1],
		ImportanceNatGasPct: f.Importance[0],
		ImportanceCDDPct:    f.Importance[1],
	}, nil
}

// Run fits every region of the drivers table. Regions below the minimum
// sample size produce no result and are listed in Report.Skipped.
func Run(ctx context.Context, t *panel.Table, cfg *Config) (*Report, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	groups, err := Collect(t)
	if err != nil {
		return nil, err
	}

	fits, err := panel.MapGroups(ctx, groups, cfg.Workers, func(_ context.Context, g panel.Group[Observation]) (*Result, error) {
		return FitRegion(g.Key, g.Items, cfg.MinObservations)
	})
	if err != nil {
		return nil, err
	}

	rep := &Report{Results: make([]*Result, 0, len(fits))}
	for i, r := range fits {
		if r == nil {
			g := groups[i]
			slog.Info("region skipped, insufficient observations",
				"region", g.Key, "observations", len(g.Items), "min", cfg.MinObservations)
			rep.Skipped = append(rep.Skipped, &Skipped{Region: g.Key, Observations: len(g.Items)})
			continue
		}
		rep.Results = append(rep.Results, r)
	}

	return rep, nil
}
