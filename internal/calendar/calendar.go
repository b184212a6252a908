// Package calendar walks business days: weekdays minus an optional set of
// exchange holidays.
package calendar

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const dateLayout = "2006-01-02"

type Calendar struct {
	holidays map[string]bool
}

// New returns a weekday-only calendar with the given holidays (YYYY-MM-DD).
func New(holidays ...string) *Calendar {
	c := &Calendar{holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		c.holidays[h] = true
	}
	return c
}

// Load reads {"holidays": ["2025-01-01", ...]}. A missing file or empty
// path yields a weekday-only calendar.
func Load(path string) (*Calendar, error) {
	if path == "" {
		return New(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read holidays: %w", err)
	}
	var cfg struct {
		Holidays []string `json:"holidays"`
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse holidays: %w", err)
	}
	for _, h := range cfg.Holidays {
		if _, err := time.Parse(dateLayout, h); err != nil {
			return nil, fmt.Errorf("parse holidays: bad date %q", h)
		}
	}
	return New(cfg.Holidays...), nil
}

func (c *Calendar) IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return c == nil || !c.holidays[t.Format(dateLayout)]
}

// OnOrBefore rolls t back to the nearest business day.
func (c *Calendar) OnOrBefore(t time.Time) time.Time {
	for !c.IsBusinessDay(t) {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// Next returns the first business day strictly after t.
func (c *Calendar) Next(t time.Time) time.Time {
	t = t.AddDate(0, 0, 1)
	for !c.IsBusinessDay(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// Back returns the business day n steps before the business day on or
// before end. Back(end, 0) is OnOrBefore(end).
func (c *Calendar) Back(end time.Time, n int) time.Time {
	t := c.OnOrBefore(end)
	for i := 0; i < n; i++ {
		t = c.OnOrBefore(t.AddDate(0, 0, -1))
	}
	return t
}

// Range lists business days in [from, to].
func (c *Calendar) Range(from, to time.Time) []time.Time {
	var out []time.Time
	for t := from; !t.After(to); t = t.AddDate(0, 0, 1) {
		if c.IsBusinessDay(t) {
			out = append(out, t)
		}
	}
	return out
}
