package market

import (
	"errors"
	"math"
	"time"
)

// DateLayout is the calendar-day format used in every artifact.
const DateLayout = "2006-01-02"

// ErrData marks a series that cannot be used: missing prices, too short,
// or out of order.
var ErrData = errors.New("data error")

// Candle is one daily OHLCV bar.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Valid reports whether the bar carries a usable close.
func (c Candle) Valid() bool {
	return c.Close > 0 && !math.IsNaN(c.Close) && !math.IsInf(c.Close, 0)
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
