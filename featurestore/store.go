// Package featurestore keeps the latest feature vector per symbol so the
// monitor can compare live inputs against training statistics.
package featurestore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sort"
	"time"
)

var ErrNotFound = errors.New("no features for symbol")

// Record is the stored feature vector of one symbol.
type Record struct {
	Symbol    string             `json:"symbol"`
	UpdatedAt time.Time          `json:"ts"`
	Features  map[string]float64 `json:"features"`
}

// Age is how long ago the record was written.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.UpdatedAt)
}

// Store is implemented by the file and Redis backends.
type Store interface {
	Put(ctx context.Context, symbol string, features map[string]float64) error
	Get(ctx context.Context, symbol string) (*Record, error)
	Snapshot(ctx context.Context) ([]Record, error)
}

// Key is the storage key of a symbol: the first 12 hex digits of its
// SHA-1.
func Key(symbol string) string {
	sum := sha1.Sum([]byte(symbol))
	return hex.EncodeToString(sum[:])[:12]
}

// CatalogEntry summarizes one record.
type CatalogEntry struct {
	Symbol       string  `json:"symbol"`
	AgeSec       float64 `json:"age_sec"`
	FeatureCount int     `json:"feature_count"`
}

// Catalog lists records by symbol with their age at now.
func Catalog(records []Record, now time.Time) []CatalogEntry {
	out := make([]CatalogEntry, 0, len(records))
	for _, r := range records {
		out = append(out, CatalogEntry{
			Symbol:       r.Symbol,
			AgeSec:       r.Age(now).Seconds(),
			FeatureCount: len(r.Features),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Symbol < rs[j].Symbol })
}
