package stress

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mchmarny/gridpulse/pkg/panel"
)

const (
	ColCDD         = "cdd"
	ColCongestion  = "congestion_usd_mwh"
	ColCurtailment = "curtailment_mwh_month"
)

// ErrEmptyJoin matches any *EmptyJoinError.
var ErrEmptyJoin = errors.New("stress join produced no rows")

// EmptyJoinError reports that no (region, month) key was common to all
// three stressor sources. It almost always means misaligned upstream keys
// or a date format the loader does not recognize.
type EmptyJoinError struct {
	CDDKeys         int
	CongestionKeys  int
	CurtailmentKeys int
	// BadDates counts rows across all sources whose date did not parse.
	BadDates int
}

func (e *EmptyJoinError) Error() string {
	msg := fmt.Sprintf("%s: no (region, month) keys common to cdd (%d), congestion (%d) and baseline curtailment (%d)",
		ErrEmptyJoin, e.CDDKeys, e.CongestionKeys, e.CurtailmentKeys)
	if e.BadDates > 0 {
		return fmt.Sprintf("%s; %d rows had unparsable dates, check the date format", msg, e.BadDates)
	}
	return msg + "; check that region and month values align across datasets"
}

func (e *EmptyJoinError) Is(target error) bool {
	return target == ErrEmptyJoin
}

// Sources are the three independently loaded stressor datasets.
type Sources struct {
	// Drivers is daily data with region, date and cdd.
	Drivers *panel.Table
	// Congestion is monthly LMP components with region, month and congestion_usd_mwh.
	Congestion *panel.Table
	// Curtailment is monthly renewables data with region, scenario, month and curtailment_mwh_month.
	Curtailment *panel.Table
}

// Record is one (region, month) row present in all three sources.
type Record struct {
	Region      string      `json:"region" yaml:"region"`
	Month       panel.Month `json:"month" yaml:"month"`
	CDD         float64     `json:"cdd_monthly" yaml:"cdd_monthly"`
	Congestion  float64     `json:"congestion_usd_mwh" yaml:"congestion_usd_mwh"`
	Curtailment float64     `json:"curtailment_mwh_month" yaml:"curtailment_mwh_month"`
}

// Validate checks every source for its required columns.
func (s *Sources) Validate() error {
	if s.Drivers == nil || s.Congestion == nil || s.Curtailment == nil {
		return errors.New("drivers, congestion and curtailment datasets are all required")
	}

	var errs []error
	for _, chk := range []struct {
		t    *panel.Table
		cols []string
	}{
		{s.Drivers, []string{panel.ColRegion, panel.ColDate, ColCDD}},
		{s.Congestion, []string{panel.ColRegion, panel.ColMonth, ColCongestion}},
		{s.Curtailment, []string{panel.ColRegion, panel.ColScenario, panel.ColMonth, ColCurtailment}},
	} {
		if err := chk.t.Require(chk.cols...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Join builds the monthly stressor panel: mean daily cdd per month, monthly
// congestion and baseline curtailment, inner joined on (region, month).
// Keys missing from any source are dropped; nothing is imputed.
func Join(src *Sources, cfg *Config) ([]Record, error) {
	if src == nil {
		return nil, errors.New("sources required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}

	cdd, cddDrops := monthlyMean(src.Drivers, panel.ColDate, ColCDD, cfg, nil)
	cong, congDrops := monthlyMean(src.Congestion, panel.ColMonth, ColCongestion, cfg, nil)
	curt, curtDrops := monthlyMean(src.Curtailment, panel.ColMonth, ColCurtailment, cfg, func(r panel.Record) bool {
		return r.String(panel.ColScenario) == cfg.BaselineScenario
	})
	for _, d := range []*dropCounts{cddDrops, congDrops, curtDrops} {
		d.log()
	}

	keys := make([]panel.Key, 0, len(cdd))
	for k := range cdd {
		_, okCong := cong[k]
		_, okCurt := curt[k]
		if okCong && okCurt {
			keys = append(keys, k)
		}
	}

	if len(keys) == 0 {
		return nil, &EmptyJoinError{
			CDDKeys:         len(cdd),
			CongestionKeys:  len(cong),
			CurtailmentKeys: len(curt),
			BadDates:        cddDrops.Date + congDrops.Date + curtDrops.Date,
		}
	}

	panel.SortKeys(keys)
	out := make([]Record, len(keys))
	for i, k := range keys {
		out[i] = Record{
			Region:      k.Region,
			Month:       panel.Month{Time: k.Month},
			CDD:         cdd[k],
			Congestion:  cong[k],
			Curtailment: curt[k],
		}
	}

	slog.Debug("stress sources joined",
		"cdd_keys", len(cdd), "congestion_keys", len(cong), "curtailment_keys", len(curt), "joined", len(out))
	return out, nil
}

// dropCounts tallies the rows of one dataset excluded from its monthly
// means, by reason.
type dropCounts struct {
	Dataset  string
	Scenario int
	Region   int
	Date     int
	Value    int
	Season   int
}

func (d *dropCounts) total() int {
	return d.Scenario + d.Region + d.Date + d.Value + d.Season
}

func (d *dropCounts) log() {
	if d.total() == 0 {
		return
	}
	slog.Debug("stressor rows dropped",
		"dataset", d.Dataset,
		"scenario", d.Scenario,
		"blank_region", d.Region,
		"bad_date", d.Date,
		"missing_value", d.Value,
		"out_of_season", d.Season)
	if d.Date > 0 {
		slog.Warn("rows with unparsable dates dropped", "dataset", d.Dataset, "rows", d.Date)
	}
}

// monthlyMean averages col per (region, month) bucket of dateCol. Rows not
// kept by keep, or with a blank region, unparsable date, missing value or
// out-of-season month, are skipped and tallied by reason.
func monthlyMean(t *panel.Table, dateCol, col string, cfg *Config, keep func(panel.Record) bool) (map[panel.Key]float64, *dropCounts) {
	type acc struct {
		sum float64
		n   int
	}
	drops := &dropCounts{Dataset: t.Name}
	sums := make(map[panel.Key]*acc)
	for _, r := range t.Records {
		if keep != nil && !keep(r) {
			drops.Scenario++
			continue
		}
		region := r.String(panel.ColRegion)
		if region == "" {
			drops.Region++
			continue
		}
		month, ok := r.Month(dateCol)
		if !ok {
			drops.Date++
			continue
		}
		if !cfg.inSeason(int(month.Month())) {
			drops.Season++
			continue
		}
		v, ok := r.Float(col)
		if !ok {
			drops.Value++
			continue
		}
		k := panel.Key{Region: region, Month: month}
		a, found := sums[k]
		if !found {
			a = &acc{}
			sums[k] = a
		}
		a.sum += v
		a.n++
	}

	out := make(map[panel.Key]float64, len(sums))
	for k, a := range sums {
		out[k] = a.sum / float64(a.n)
	}
	return out, drops
}
