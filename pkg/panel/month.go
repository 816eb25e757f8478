package panel

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const monthLayout = "2006-01-02"

// Month is a calendar month bucket. It renders as YYYY-MM-DD in every
// output format, matching the CSV and store representation.
type Month struct {
	time.Time
}

// NewMonth returns the month bucket containing t.
func NewMonth(t time.Time) Month {
	return Month{Time: MonthOf(t)}
}

// ParseMonth parses a YYYY-MM-DD month value.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return NewMonth(t), nil
}

// Before reports whether m is earlier than o.
func (m Month) Before(o Month) bool {
	return m.Time.Before(o.Time)
}

func (m Month) String() string {
	return FormatMonth(m.Time)
}

func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Month) MarshalYAML() (any, error) {
	return m.String(), nil
}

func (m *Month) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseMonth(n.Value)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// FormatMonth renders a month bucket the way result tables carry it.
func FormatMonth(t time.Time) string {
	return t.Format(monthLayout)
}
