// Package synth generates deterministic daily price series for tests and
// the demo data command.
package synth

import (
	"math"
	"math/rand"
	"time"

	"github.com/rustyeddy/forecaster/market"
)

// Walk returns n business-day bars starting at start, following a
// geometric random walk with the given daily volatility.
func Walk(symbol string, start time.Time, n int, vol float64, seed int64) market.Series {
	r := rand.New(rand.NewSource(seed))
	s := market.Series{Symbol: symbol, Candles: make([]market.Candle, 0, n)}
	price := 100.0
	d := market.Day(start)
	for len(s.Candles) < n {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			d = d.AddDate(0, 0, 1)
			continue
		}
		open := price
		price *= math.Exp(r.NormFloat64() * vol)
		hi := math.Max(open, price) * (1 + math.Abs(r.NormFloat64())*vol/2)
		lo := math.Min(open, price) * (1 - math.Abs(r.NormFloat64())*vol/2)
		s.Candles = append(s.Candles, market.Candle{
			Date:   d,
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  price,
			Volume: 1e6 * (1 + r.Float64()),
		})
		d = d.AddDate(0, 0, 1)
	}
	return s
}

// Universe builds one walk per symbol with distinct seeds.
func Universe(symbols []string, start time.Time, n int, seed int64) market.SeriesMap {
	m := make(market.SeriesMap, len(symbols))
	for i, sym := range symbols {
		m[sym] = Walk(sym, start, n, 0.015, seed+int64(i)*7919)
	}
	return m
}
