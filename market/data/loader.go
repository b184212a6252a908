// Package data loads daily OHLCV series from CSV directories or ClickHouse.
package data

import (
	"context"

	"github.com/rustyeddy/forecaster/market"
)

// Loader fetches series for the requested symbols; an empty list means
// every symbol the source knows about.
type Loader interface {
	Load(ctx context.Context, symbols []string) (market.SeriesMap, error)
}
