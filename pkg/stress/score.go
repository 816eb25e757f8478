package stress

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/mchmarny/gridpulse/pkg/panel"
	"github.com/mchmarny/gridpulse/pkg/stats"
)

// Columns is the output column contract, in order.
var Columns = []string{
	"region", "month",
	"cdd_monthly", "congestion_usd_mwh", "curtailment_mwh_month",
	"z_cdd", "z_congestion", "z_curtailment",
	"stress_score", "rank_in_region", "stress_flag",
}

// Result is one scored (region, month).
type Result struct {
	Record       `yaml:",inline"`
	ZCDD         float64 `json:"z_cdd" yaml:"z_cdd"`
	ZCongestion  float64 `json:"z_congestion" yaml:"z_congestion"`
	ZCurtailment float64 `json:"z_curtailment" yaml:"z_curtailment"`
	Score        float64 `json:"stress_score" yaml:"stress_score"`
	Rank         int     `json:"rank_in_region" yaml:"rank_in_region"`
	Flag         bool    `json:"stress_flag" yaml:"stress_flag"`
}

// Values implements panel.Row.
func (r *Result) Values() []string {
	return []string{
		r.Region,
		r.Month.String(),
		panel.FormatFloat(r.CDD),
		panel.FormatFloat(r.Congestion),
		panel.FormatFloat(r.Curtailment),
		panel.FormatFloat(r.ZCDD),
		panel.FormatFloat(r.ZCongestion),
		panel.FormatFloat(r.ZCurtailment),
		panel.FormatFloat(r.Score),
		strconv.Itoa(r.Rank),
		strconv.FormatBool(r.Flag),
	}
}

// Score computes per-region z-scores, the composite stress score, the
// in-region dense rank and the high stress flag for every record.
//
// The three z-scores are summed with equal weights regardless of how the
// signals correlate or how they were originally scaled.
func Score(ctx context.Context, records []Record, cfg *Config) ([]*Result, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(records) == 0 {
		return nil, &EmptyJoinError{}
	}

	groups := panel.GroupBy(records, func(r Record) string { return r.Region })
	scored, err := panel.MapGroups(ctx, groups, cfg.Workers, func(_ context.Context, g panel.Group[Record]) ([]*Result, error) {
		return scoreRegion(g.Items, cfg.HighStressThreshold), nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scoring regions: %w", err)
	}

	out := make([]*Result, 0, len(records))
	for _, s := range scored {
		out = append(out, s...)
	}
	sortResults(out)

	slog.Debug("stress scored", "regions", len(groups), "rows", len(out))
	return out, nil
}

// Run joins the sources and scores the joined panel.
func Run(ctx context.Context, src *Sources, cfg *Config) ([]*Result, error) {
	records, err := Join(src, cfg)
	if err != nil {
		return nil, err
	}
	return Score(ctx, records, cfg)
}

func scoreRegion(items []Record, threshold float64) []*Result {
	rows := make([]Record, len(items))
	copy(rows, items)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Month.Before(rows[j].Month) })

	cdd := make([]float64, len(rows))
	cong := make([]float64, len(rows))
	curt := make([]float64, len(rows))
	for i, r := range rows {
		cdd[i] = r.CDD
		cong[i] = r.Congestion
		curt[i] = r.Curtailment
	}

	zCDD := stats.ZScores(cdd)
	zCong := stats.ZScores(cong)
	zCurt := stats.ZScores(curt)

	scores := make([]float64, len(rows))
	for i := range rows {
		scores[i] = zCDD[i] + zCong[i] + zCurt[i]
	}
	ranks := stats.DenseRankDesc(scores)

	out := make([]*Result, len(rows))
	for i, r := range rows {
		out[i] = &Result{
			Record:       r,
			ZCDD:         zCDD[i],
			ZCongestion:  zCong[i],
			ZCurtailment: zCurt[i],
			Score:        scores[i],
			Rank:         ranks[i],
			Flag:         scores[i] >= threshold,
		}
	}
	return out
}

// sortResults orders by region ascending, then score descending; month
// breaks remaining ties.
func sortResults(rs []*Result) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Month.Before(b.Month)
	})
}

// Summary counts flagged months per region.
type Summary struct {
	Region    string      `json:"region" yaml:"region"`
	Months    int         `json:"months" yaml:"months"`
	Flagged   int         `json:"flagged" yaml:"flagged"`
	PeakMonth panel.Month `json:"peak_month" yaml:"peak_month"`
	PeakScore float64     `json:"peak_score" yaml:"peak_score"`
}

// Summarize returns one summary per region from sorted results.
func Summarize(rs []*Result) []*Summary {
	var out []*Summary
	var cur *Summary
	for _, r := range rs {
		if cur == nil || cur.Region != r.Region {
			cur = &Summary{Region: r.Region, PeakMonth: r.Month, PeakScore: r.Score}
			out = append(out, cur)
		}
		cur.Months++
		if r.Flag {
			cur.Flagged++
		}
		if r.Score > cur.PeakScore {
			cur.PeakScore = r.Score
			cur.PeakMonth = r.Month
		}
	}
	return out
}

// Flagged counts results carrying the high stress flag.
func Flagged(rs []*Result) int {
	n := 0
	for _, r := range rs {
		if r.Flag {
			n++
		}
	}
	return n
}
