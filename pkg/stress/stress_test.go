package stress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mchmarny/gridpulse/pkg/panel"
	"github.com/mchmarny/gridpulse/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const tolerance = 1e-9

func month(m time.Month) panel.Month {
	return panel.NewMonth(time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC))
}

func exampleRecords() []Record {
	return []Record{
		{Region: "ERCOT", Month: month(time.August), CDD: 30, Congestion: 5, Curtailment: 600},
		{Region: "ERCOT", Month: month(time.June), CDD: 10, Congestion: 5, Curtailment: 100},
		{Region: "ERCOT", Month: month(time.July), CDD: 20, Congestion: 5, Curtailment: 200},
	}
}

func byMonth(rs []*Result) map[time.Month]*Result {
	m := make(map[time.Month]*Result, len(rs))
	for _, r := range rs {
		m[r.Month.Month()] = r
	}
	return m
}

func TestScore_Example(t *testing.T) {
	rs, err := Score(context.Background(), exampleRecords(), nil)
	require.NoError(t, err)
	require.Len(t, rs, 3)

	m := byMonth(rs)
	for _, r := range rs {
		assert.Equal(t, 0.0, r.ZCongestion, "constant congestion scores zero")
		assert.InDelta(t, r.ZCDD+r.ZCurtailment, r.Score, tolerance)
	}

	assert.InDelta(t, -1.224744871, m[time.June].ZCDD, 1e-6)
	assert.InDelta(t, 0, m[time.July].ZCDD, tolerance)
	assert.InDelta(t, 1.224744871, m[time.August].ZCDD, 1e-6)

	assert.InDelta(t, -0.92582, m[time.June].ZCurtailment, 1e-4)
	assert.InDelta(t, -0.46291, m[time.July].ZCurtailment, 1e-4)
	assert.InDelta(t, 1.38873, m[time.August].ZCurtailment, 1e-4)

	assert.Equal(t, 1, m[time.August].Rank)
	assert.Equal(t, 2, m[time.July].Rank)
	assert.Equal(t, 3, m[time.June].Rank)

	assert.True(t, m[time.August].Flag)
	assert.False(t, m[time.July].Flag)
	assert.False(t, m[time.June].Flag)

	// presentation order: score descending within region
	assert.Equal(t, time.August, rs[0].Month.Month())
	assert.Equal(t, time.July, rs[1].Month.Month())
	assert.Equal(t, time.June, rs[2].Month.Month())
}

func TestScore_ZScoresNormalized(t *testing.T) {
	records := []Record{
		{Region: "A", Month: month(time.June), CDD: 1.5, Congestion: 10, Curtailment: 0},
		{Region: "A", Month: month(time.July), CDD: 7, Congestion: 12, Curtailment: 50},
		{Region: "A", Month: month(time.August), CDD: 2.25, Congestion: 3, Curtailment: 0},
		{Region: "A", Month: month(time.September), CDD: 9, Congestion: 8, Curtailment: 20},
		{Region: "B", Month: month(time.June), CDD: 100, Congestion: 1, Curtailment: 5},
		{Region: "B", Month: month(time.July), CDD: 300, Congestion: 2, Curtailment: 5},
	}

	rs, err := Score(context.Background(), records, nil)
	require.NoError(t, err)

	groups := panel.GroupBy(rs, func(r *Result) string { return r.Region })
	for _, g := range groups {
		var zc, zg []float64
		for _, r := range g.Items {
			zc = append(zc, r.ZCDD)
			zg = append(zg, r.ZCongestion)
		}
		mean, sd := stats.PopMeanStdDev(zc)
		assert.InDelta(t, 0, mean, tolerance, g.Key)
		assert.InDelta(t, 1, sd, tolerance, g.Key)
		mean, sd = stats.PopMeanStdDev(zg)
		assert.InDelta(t, 0, mean, tolerance, g.Key)
		assert.InDelta(t, 1, sd, tolerance, g.Key)
	}

	for _, r := range rs {
		if r.Region == "B" {
			assert.Equal(t, 0.0, r.ZCurtailment)
		}
	}
}

func TestScore_SingleRowGroup(t *testing.T) {
	rs, err := Score(context.Background(), []Record{
		{Region: "SOLO", Month: month(time.July), CDD: 12, Congestion: 4, Curtailment: 9},
	}, nil)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, 0.0, rs[0].ZCDD)
	assert.Equal(t, 0.0, rs[0].ZCongestion)
	assert.Equal(t, 0.0, rs[0].ZCurtailment)
	assert.Equal(t, 0.0, rs[0].Score)
	assert.Equal(t, 1, rs[0].Rank)
	assert.False(t, rs[0].Flag)
}

func TestScore_TiesShareDenseRank(t *testing.T) {
	// two identical months tie for the top score
	records := []Record{
		{Region: "A", Month: month(time.June), CDD: 2, Congestion: 2, Curtailment: 2},
		{Region: "A", Month: month(time.July), CDD: 0, Congestion: 0, Curtailment: 0},
		{Region: "A", Month: month(time.August), CDD: 2, Congestion: 2, Curtailment: 2},
		{Region: "A", Month: month(time.September), CDD: 1, Congestion: 1, Curtailment: 1},
	}
	rs, err := Score(context.Background(), records, nil)
	require.NoError(t, err)

	m := byMonth(rs)
	assert.Equal(t, 1, m[time.June].Rank)
	assert.Equal(t, 1, m[time.August].Rank)
	assert.Equal(t, 2, m[time.September].Rank)
	assert.Equal(t, 3, m[time.July].Rank)

	// equal scores keep month order
	assert.Equal(t, time.June, rs[0].Month.Month())
	assert.Equal(t, time.August, rs[1].Month.Month())
}

func TestScore_FlagBoundaryInclusive(t *testing.T) {
	// two-row groups z-score to exactly -1 and +1
	records := []Record{
		{Region: "A", Month: month(time.June), CDD: 0, Congestion: 0, Curtailment: 2},
		{Region: "A", Month: month(time.July), CDD: 2, Congestion: 2, Curtailment: 0},
	}

	cfg := DefaultConfig()
	cfg.HighStressThreshold = 1
	rs, err := Score(context.Background(), records, cfg)
	require.NoError(t, err)

	m := byMonth(rs)
	require.Equal(t, 1.0, m[time.July].Score)
	assert.True(t, m[time.July].Flag, "score equal to the threshold is flagged")
	assert.Equal(t, -1.0, m[time.June].Score)
	assert.False(t, m[time.June].Flag)

	rs, err = Score(context.Background(), records, DefaultConfig())
	require.NoError(t, err)
	for _, r := range rs {
		assert.Equal(t, r.Score >= DefaultHighStressThreshold, r.Flag)
	}
}

func TestScore_FlagAtDefaultThreshold(t *testing.T) {
	// one low month and four equal high months z-score to -2 and 0.5 per signal
	records := []Record{
		{Region: "A", Month: month(time.May), CDD: 0, Congestion: 0, Curtailment: 0},
		{Region: "A", Month: month(time.June), CDD: 5, Congestion: 5, Curtailment: 5},
		{Region: "A", Month: month(time.July), CDD: 5, Congestion: 5, Curtailment: 5},
		{Region: "A", Month: month(time.August), CDD: 5, Congestion: 5, Curtailment: 5},
		{Region: "A", Month: month(time.September), CDD: 5, Congestion: 5, Curtailment: 5},
	}
	rs, err := Score(context.Background(), records, DefaultConfig())
	require.NoError(t, err)

	m := byMonth(rs)
	for _, mo := range []time.Month{time.June, time.July, time.August, time.September} {
		require.Equal(t, DefaultHighStressThreshold, m[mo].Score)
		assert.True(t, m[mo].Flag, "score equal to the default threshold is flagged")
		assert.Equal(t, 1, m[mo].Rank)
	}
	assert.Equal(t, -6.0, m[time.May].Score)
	assert.False(t, m[time.May].Flag)
	assert.Equal(t, 2, m[time.May].Rank)

	// a constant curtailment drops the high months to 1.0, below the default
	for i := range records {
		records[i].Curtailment = 7
	}
	rs, err = Score(context.Background(), records, nil)
	require.NoError(t, err)
	for _, r := range rs {
		assert.False(t, r.Flag)
	}
}

func TestScore_OrderAcrossRegions(t *testing.T) {
	records := append(exampleRecords(),
		Record{Region: "CAISO", Month: month(time.June), CDD: 1, Congestion: 2, Curtailment: 3},
		Record{Region: "CAISO", Month: month(time.July), CDD: 3, Congestion: 2, Curtailment: 1},
	)
	cfg := DefaultConfig()
	cfg.Workers = 1
	rs, err := Score(context.Background(), records, cfg)
	require.NoError(t, err)
	require.Len(t, rs, 5)
	assert.Equal(t, "CAISO", rs[0].Region)
	assert.Equal(t, "CAISO", rs[1].Region)
	assert.Equal(t, "ERCOT", rs[2].Region)
	for i := 1; i < len(rs); i++ {
		if rs[i].Region == rs[i-1].Region {
			assert.GreaterOrEqual(t, rs[i-1].Score, rs[i].Score)
		}
	}
}

func TestScore_Empty(t *testing.T) {
	_, err := Score(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyJoin)
}

func newTable(name string, header []string, rows ...[]string) *panel.Table {
	t := panel.NewTable(name, header)
	for _, r := range rows {
		t.Append(r...)
	}
	return t
}

func testSources() *Sources {
	return &Sources{
		Drivers: newTable("drivers", []string{"region", "date", "cdd"},
			[]string{"ERCOT", "2024-06-01", "8"},
			[]string{"ERCOT", "2024-06-02", "12"},
			[]string{"ERCOT", "2024-07-01", "20"},
			[]string{"ERCOT", "2024-08-15", "30"},
			[]string{"ERCOT", "2024-08-16", ""},
			[]string{"ERCOT", "2024-01-10", "0"},
			[]string{"CAISO", "2024-06-03", "4"},
		),
		Congestion: newTable("congestion", []string{"region", "month", "congestion_usd_mwh"},
			[]string{"ERCOT", "2024-06-01", "5"},
			[]string{"ERCOT", "2024-07-01", "5"},
			[]string{"ERCOT", "2024-08-01", "5"},
			[]string{"ERCOT", "2024-01-01", "5"},
			[]string{"CAISO", "2024-06-01", "2"},
		),
		Curtailment: newTable("curtailment", []string{"region", "scenario", "month", "curtailment_mwh_month"},
			[]string{"ERCOT", "Baseline", "2024-06-01", "100"},
			[]string{"ERCOT", "Baseline", "2024-07-01", "200"},
			[]string{"ERCOT", "Baseline", "2024-08-01", "600"},
			[]string{"ERCOT", "High_Renewables", "2024-08-01", "9000"},
			[]string{"ERCOT", "Baseline", "2024-01-01", "10"},
			[]string{"CAISO", "Storage_Focus", "2024-06-01", "70"},
		),
	}
}

func TestJoin(t *testing.T) {
	records, err := Join(testSources(), nil)
	require.NoError(t, err)

	// CAISO has no baseline curtailment and January is out of season
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, "ERCOT", r.Region)
	}
	assert.Equal(t, Record{Region: "ERCOT", Month: month(time.June), CDD: 10, Congestion: 5, Curtailment: 100}, records[0])
	assert.Equal(t, 20.0, records[1].CDD)
	assert.Equal(t, 30.0, records[2].CDD, "missing daily cdd is skipped, not zeroed")
	assert.Equal(t, 600.0, records[2].Curtailment, "only the baseline scenario is joined")
}

func TestJoin_AllMonths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeasonMonths = nil
	records, err := Join(testSources(), cfg)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, time.January, records[0].Month.Month())
}

func TestJoin_MixedDateFormats(t *testing.T) {
	src := testSources()
	src.Drivers = newTable("drivers", []string{"region", "date", "cdd"},
		[]string{"ERCOT", "2024-06-01", "8"},
		[]string{"ERCOT", "6/2/2024", "100"},
		[]string{"ERCOT", "2024-07-01 13:45", "20"},
		[]string{"ERCOT", "2024-07-02 00:00:00-05:00", "40"},
		[]string{"ERCOT", "08/15/2024", "30"},
	)

	records, err := Join(src, nil)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 54.0, records[0].CDD)
	assert.Equal(t, 30.0, records[1].CDD)
	assert.Equal(t, 30.0, records[2].CDD)
}

func TestMonthlyMean_DropCounts(t *testing.T) {
	tbl := newTable("curtailment", []string{"region", "scenario", "month", "curtailment_mwh_month"},
		[]string{"ERCOT", "Baseline", "2024-06-01", "100"},
		[]string{"ERCOT", "Baseline", "2024-06-01", "300"},
		[]string{"ERCOT", "High_Renewables", "2024-06-01", "9000"},
		[]string{"", "Baseline", "2024-06-01", "1"},
		[]string{"ERCOT", "Baseline", "June 2024", "1"},
		[]string{"ERCOT", "Baseline", "2024-07-01", "n/a"},
		[]string{"ERCOT", "Baseline", "2024-01-01", "1"},
	)

	cfg := DefaultConfig()
	means, drops := monthlyMean(tbl, panel.ColMonth, ColCurtailment, cfg, func(r panel.Record) bool {
		return r.String(panel.ColScenario) == cfg.BaselineScenario
	})
	require.Len(t, means, 1)
	assert.Equal(t, 200.0, means[panel.Key{Region: "ERCOT", Month: month(time.June).Time}])

	assert.Equal(t, &dropCounts{
		Dataset:  "curtailment",
		Scenario: 1,
		Region:   1,
		Date:     1,
		Value:    1,
		Season:   1,
	}, drops)
	assert.Equal(t, 5, drops.total())
}

func TestJoin_EmptyFromBadDates(t *testing.T) {
	src := testSources()
	src.Drivers = newTable("drivers", []string{"region", "date", "cdd"},
		[]string{"ERCOT", "June 1st", "8"},
		[]string{"ERCOT", "2024.06.02", "12"},
	)

	_, err := Join(src, nil)
	require.ErrorIs(t, err, ErrEmptyJoin)

	var ee *EmptyJoinError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 2, ee.BadDates)
	assert.Equal(t, 0, ee.CDDKeys)
	assert.Contains(t, err.Error(), "2 rows had unparsable dates")
	assert.NotContains(t, err.Error(), "align")
}

func TestRun(t *testing.T) {
	rs, err := Run(context.Background(), testSources(), nil)
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, time.August, rs[0].Month.Month())
	assert.Equal(t, 1, rs[0].Rank)
}

func TestJoin_Empty(t *testing.T) {
	src := testSources()
	src.Curtailment = newTable("curtailment", []string{"region", "scenario", "month", "curtailment_mwh_month"},
		[]string{"PJM", "Baseline", "2024-06-01", "100"},
	)
	_, err := Join(src, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyJoin)

	var ee *EmptyJoinError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 1, ee.CurtailmentKeys)
	assert.Contains(t, err.Error(), "align")
}

func TestJoin_SchemaError(t *testing.T) {
	src := testSources()
	src.Congestion = newTable("congestion", []string{"region", "month", "energy_usd_mwh"})
	src.Curtailment = newTable("curtailment", []string{"region", "month"})

	_, err := Join(src, nil)
	require.Error(t, err)

	var se *panel.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "congestion", se.Dataset)
	assert.Equal(t, []string{"congestion_usd_mwh"}, se.Missing)
	assert.Contains(t, err.Error(), `"curtailment"`)
	assert.Contains(t, err.Error(), "scenario, curtailment_mwh_month")
}

func TestJoin_NilSources(t *testing.T) {
	_, err := Join(nil, nil)
	assert.Error(t, err)
	_, err = Join(&Sources{}, nil)
	assert.Error(t, err)
}

func TestResultCSV(t *testing.T) {
	rs, err := Score(context.Background(), exampleRecords(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, panel.WriteCSV(&buf, Columns, rs))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "region,month,cdd_monthly,congestion_usd_mwh,curtailment_mwh_month,z_cdd,z_congestion,z_curtailment,stress_score,rank_in_region,stress_flag", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "ERCOT,2024-08-01,30,5,600,"))
	assert.True(t, strings.HasSuffix(lines[1], ",1,true"))
}

func TestResultEncoding(t *testing.T) {
	rs, err := Score(context.Background(), exampleRecords(), nil)
	require.NoError(t, err)

	b, err := json.Marshal(rs[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"month":"2024-08-01"`)
	assert.Contains(t, string(b), `"stress_flag":true`)

	var back Result
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, *rs[0], back)

	y, err := yaml.Marshal(rs[0])
	require.NoError(t, err)
	assert.Contains(t, string(y), "2024-08-01")
	assert.NotContains(t, string(y), "T00:00:00")

	b, err = json.Marshal(Summarize(rs)[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"peak_month":"2024-08-01"`)
}

func TestSummarize(t *testing.T) {
	rs, err := Score(context.Background(), exampleRecords(), nil)
	require.NoError(t, err)

	sum := Summarize(rs)
	require.Len(t, sum, 1)
	assert.Equal(t, "ERCOT", sum[0].Region)
	assert.Equal(t, 3, sum[0].Months)
	assert.Equal(t, 1, sum[0].Flagged)
	assert.Equal(t, month(time.August), sum[0].PeakMonth)
	assert.Equal(t, 1, Flagged(rs))
}
