package market

import (
	"fmt"
	"sort"
	"time"
)

// Series is a date-ordered run of daily bars for one symbol.
// Dates are strictly increasing and unique; loaders enforce this through
// Validate.
type Series struct {
	Symbol  string   `json:"symbol"`
	Candles []Candle `json:"candles"`
}

func (s Series) Len() int { return len(s.Candles) }

// HasClose reports whether at least one bar carries a usable close.
func (s Series) HasClose() bool {
	for _, c := range s.Candles {
		if c.Valid() {
			return true
		}
	}
	return false
}

func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

func (s Series) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// upperBound returns the first index whose date is after t.
func (s Series) upperBound(t time.Time) int {
	return sort.Search(len(s.Candles), func(i int) bool {
		return s.Candles[i].Date.After(t)
	})
}

// lowerBound returns the first index whose date is not before t.
func (s Series) lowerBound(t time.Time) int {
	return sort.Search(len(s.Candles), func(i int) bool {
		return !s.Candles[i].Date.Before(t)
	})
}

// Until returns the prefix of bars dated on or before cutoff. The returned
// series shares the backing array.
func (s Series) Until(cutoff time.Time) Series {
	return Series{Symbol: s.Symbol, Candles: s.Candles[:s.upperBound(cutoff)]}
}

// FirstAtOrAfter returns the first bar dated on or after t.
func (s Series) FirstAtOrAfter(t time.Time) (Candle, bool) {
	i := s.lowerBound(t)
	if i >= len(s.Candles) {
		return Candle{}, false
	}
	return s.Candles[i], true
}

// Validate checks that dates strictly increase.
func (s Series) Validate() error {
	for i := 1; i < len(s.Candles); i++ {
		if !s.Candles[i].Date.After(s.Candles[i-1].Date) {
			return fmt.Errorf("%w: %s: bar %d (%s) not after %s", ErrData, s.Symbol, i,
				s.Candles[i].Date.Format(DateLayout), s.Candles[i-1].Date.Format(DateLayout))
		}
	}
	return nil
}

// SeriesMap maps symbol to its series.
type SeriesMap map[string]Series

// Symbols returns the keys in sorted order.
func (m SeriesMap) Symbols() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LatestDate returns the most recent bar date across all series.
func (m SeriesMap) LatestDate() (time.Time, bool) {
	var latest time.Time
	found := false
	for _, s := range m {
		if c, ok := s.Last(); ok && (!found || c.Date.After(latest)) {
			latest = c.Date
			found = true
		}
	}
	return latest, found
}

// Until truncates every series to bars on or before cutoff and drops
// symbols left with fewer than minRows bars.
func (m SeriesMap) Until(cutoff time.Time, minRows int) SeriesMap {
	out := make(SeriesMap, len(m))
	for sym, s := range m {
		t := s.Until(cutoff)
		if t.Len() >= minRows {
			out[sym] = t
		}
	}
	return out
}

// Between keeps bars dated within [from, to]. A zero bound is open.
func (m SeriesMap) Between(from, to time.Time) SeriesMap {
	out := make(SeriesMap, len(m))
	for sym, s := range m {
		lo, hi := 0, len(s.Candles)
		if !from.IsZero() {
			lo = s.lowerBound(from)
		}
		if !to.IsZero() {
			hi = s.upperBound(to)
		}
		if lo > hi {
			lo = hi
		}
		out[sym] = Series{Symbol: s.Symbol, Candles: s.Candles[lo:hi]}
	}
	return out
}
