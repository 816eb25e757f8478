package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mchmarny/gridpulse/pkg/data"
	"github.com/mchmarny/gridpulse/pkg/stress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir         string
	db          string
	drivers     string
	congestion  string
	curtailment string
}

func writeFile(t *testing.T, path string, lines []string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600))
}

// newFixture writes a drivers panel with 40 summer days per region plus the
// monthly congestion and curtailment datasets.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:         dir,
		db:          filepath.Join(dir, "test.db"),
		drivers:     filepath.Join(dir, "drivers.csv"),
		congestion:  filepath.Join(dir, "congestion.csv"),
		curtailment: filepath.Join(dir, "curtailment.csv"),
	}

	drivers := []string{"date,region,avg_price_usd_mwh,natgas_monthly,cdd,scenario"}
	congestion := []string{"region,month,congestion_usd_mwh"}
	curtailment := []string{"region,scenario,month,curtailment_mwh_month"}

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for ri, region := range []string{"CAISO", "ERCOT"} {
		for i := 0; i < 40; i++ {
			d := start.AddDate(0, 0, i*3)
			gas := 2 + float64(i%9)*0.25
			cdd := float64((i*7)%11) + float64(ri)
			price := 10 + 8*gas + 0.5*cdd + math.Cos(float64(i))
			drivers = append(drivers, fmt.Sprintf("%s,%s,%g,%g,%g,Baseline", d.Format("2006-01-02"), region, price, gas, cdd))
		}
		for m := 6; m <= 9; m++ {
			month := time.Date(2024, time.Month(m), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
			congestion = append(congestion, fmt.Sprintf("%s,%s,%d", region, month, m*(ri+1)))
			curtailment = append(curtailment,
				fmt.Sprintf("%s,Baseline,%s,%d", region, month, 100*m),
				fmt.Sprintf("%s,HighRenewables,%s,%d", region, month, 999))
		}
	}

	writeFile(t, f.drivers, drivers)
	writeFile(t, f.congestion, congestion)
	writeFile(t, f.curtailment, curtailment)
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })

	full := append([]string{appName, "--config", f.dir, "--db", f.db, "--workers", "2"}, args...)
	err := newApp().Run(full)
	return buf.String(), err
}

func TestStressCommand(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.dir, "stress.csv")

	res, err := f.run(t, "stress",
		"--drivers", f.drivers,
		"--congestion", f.congestion,
		"--curtailment", f.curtailment,
		"--out", out)
	require.NoError(t, err)

	var rep stressReport
	require.NoError(t, json.Unmarshal([]byte(res), &rep))
	assert.Equal(t, 8, rep.Rows)
	require.Len(t, rep.Regions, 2)
	assert.Equal(t, "CAISO", rep.Regions[0].Region)
	assert.Equal(t, 4, rep.Regions[0].Months)
	require.NotNil(t, rep.Run)
	assert.Equal(t, data.RunKindStress, rep.Run.Kind)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, strings.Join(stress.Columns, ","), lines[0])

	res, err = f.run(t, "show", "stress", "--region", "ERCOT")
	require.NoError(t, err)
	var stored []*stress.Result
	require.NoError(t, json.Unmarshal([]byte(res), &stored))
	require.Len(t, stored, 4)
	for _, r := range stored {
		assert.Equal(t, "ERCOT", r.Region)
		// baseline scenario only
		assert.Less(t, r.Curtailment, 999.0)
	}
}

func TestStressCommand_Overrides(t *testing.T) {
	f := newFixture(t)

	res, err := f.run(t, "--format", "yaml", "stress",
		"--drivers", f.drivers,
		"--congestion", f.congestion,
		"--curtailment", f.curtailment,
		"--months", "7,8",
		"--threshold", "-100",
		"--no-save")
	require.NoError(t, err)
	assert.Contains(t, res, "rows: 4")
	assert.Contains(t, res, "flagged: 4")
	assert.NotContains(t, res, "run:")

	_, err = os.Stat(f.db)
	assert.True(t, os.IsNotExist(err), "store is not opened with --no-save")
}

func TestStressCommand_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "stress",
		"--drivers", f.drivers,
		"--congestion", f.congestion,
		"--curtailment", f.curtailment,
		"--baseline", "Nope",
		"--no-save")
	assert.ErrorIs(t, err, stress.ErrEmptyJoin)

	_, err = f.run(t, "stress",
		"--drivers", f.drivers,
		"--congestion", f.congestion,
		"--curtailment", f.curtailment,
		"--months", "13")
	assert.Error(t, err)

	_, err = f.run(t, "stress",
		"--drivers", filepath.Join(f.dir, "missing.csv"),
		"--congestion", f.congestion,
		"--curtailment", f.curtailment)
	assert.Error(t, err)
}

func TestAttributeCommand(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.dir, "attribution.csv")

	res, err := f.run(t, "attribute", "--drivers", f.drivers, "--out", out)
	require.NoError(t, err)

	var rep struct {
		Run     *data.Run `json:"run"`
		Results []struct {
			Region       string   `json:"region"`
			Observations int      `json:"n_obs"`
			R2           *float64 `json:"r2"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(res), &rep))
	require.Len(t, rep.Results, 2)
	assert.Equal(t, 40, rep.Results[0].Observations)
	require.NotNil(t, rep.Results[0].R2)
	require.NotNil(t, rep.Run)

	_, err = os.Stat(out)
	assert.NoError(t, err)

	res, err = f.run(t, "attribute", "--drivers", f.drivers, "--min-obs", "41", "--no-save")
	require.NoError(t, err)
	assert.Contains(t, res, `"skipped"`)
	assert.Contains(t, res, `"results": []`)

	_, err = f.run(t, "attribute", "--drivers", f.drivers, "--min-obs", "1")
	assert.Error(t, err)

	res, err = f.run(t, "runs")
	require.NoError(t, err)
	var runs []*data.Run
	require.NoError(t, json.Unmarshal([]byte(res), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, data.RunKindAttribution, runs[0].Kind)

	res, err = f.run(t, "show", "attribution", "--region", "CAISO")
	require.NoError(t, err)
	assert.Contains(t, res, `"region": "CAISO"`)
	assert.NotContains(t, res, "ERCOT")
}

func TestApp_InvalidFormat(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "--format", "xml", "runs")
	assert.Error(t, err)
}

func TestApp_InvalidWorkers(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	defer func() { stdout = prev }()

	err := newApp().Run([]string{appName, "--config", f.dir, "--workers", "0", "runs"})
	assert.Error(t, err)
}

func TestParseMonths(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"6,7,8,9", []int{6, 7, 8, 9}, false},
		{" 1 , 12 ", []int{1, 12}, false},
		{"all", []int{}, false},
		{"ALL", []int{}, false},
		{"0", nil, true},
		{"13", nil, true},
		{"june", nil, true},
		{",", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMonths(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
