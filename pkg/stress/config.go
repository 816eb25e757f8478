package stress

const (
	// DefaultHighStressThreshold flags a month whose composite score is at
	// or above it.
	DefaultHighStressThreshold = 1.5

	// DefaultBaselineScenario is the only curtailment scenario joined, so
	// parallel what-if scenarios are not counted more than once.
	DefaultBaselineScenario = "Baseline"
)

// DefaultSeasonMonths is the summer peak window (June through September).
var DefaultSeasonMonths = []int{6, 7, 8, 9}

// Config holds the scorer policies.
type Config struct {
	HighStressThreshold float64 `yaml:"high_stress_threshold" json:"high_stress_threshold"`
	BaselineScenario    string  `yaml:"baseline_scenario" json:"baseline_scenario"`
	// SeasonMonths limits the join to these calendar months; empty keeps all.
	SeasonMonths []int `yaml:"season_months" json:"season_months"`
	Workers      int   `yaml:"-" json:"-"`
}

// DefaultConfig returns the production scorer configuration.
func DefaultConfig() *Config {
	months := make([]int, len(DefaultSeasonMonths))
	copy(months, DefaultSeasonMonths)
	return &Config{
		HighStressThreshold: DefaultHighStressThreshold,
		BaselineScenario:    DefaultBaselineScenario,
		SeasonMonths:        months,
	}
}

func (c *Config) inSeason(month int) bool {
	if len(c.SeasonMonths) == 0 {
		return true
	}
	for _, m := range c.SeasonMonths {
		if m == month {
			return true
		}
	}
	return false
}
