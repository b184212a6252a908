// Package predlog is the append-only JSONL log of live predictions that
// the monitor later joins with realized outcomes.
package predlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/pkg/atomicfile"
	"github.com/rustyeddy/forecaster/pkg/id"
)

// TimeLayout stamps entries.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Entry is one logged prediction. Realized stays nil until every horizon
// has an outcome.
type Entry struct {
	ID            string          `json:"id"`
	TS            string          `json:"ts"`
	ModelSnapshot string          `json:"model_snapshot"`
	Symbol        string          `json:"symbol"`
	Prob          *float64        `json:"prob"`
	ProbH         map[int]float64 `json:"prob_h"`
	Horizons      []int           `json:"horizons"`
	Price         *float64        `json:"price"`
	BarDate       string          `json:"bar_date"`
	FutureDue     map[int]string  `json:"future_due"`
	Realized      map[int]int     `json:"realized,omitempty"`
}

// Finalized reports whether the entry has realized outcomes and a
// probability.
func (e *Entry) Finalized() bool {
	return len(e.Realized) > 0 && e.Prob != nil
}

// NewEntry builds an entry for a prediction made from the bar at
// barDate. Each horizon is due barDate plus h calendar days.
func NewEntry(now time.Time, snapshot, symbol string, prob float64, probH map[int]float64, price float64, barDate time.Time) Entry {
	e := Entry{
		ID:            id.At(now),
		TS:            now.UTC().Format(TimeLayout),
		ModelSnapshot: snapshot,
		Symbol:        symbol,
		Prob:          &prob,
		Price:         &price,
		BarDate:       barDate.Format(market.DateLayout),
	}
	if len(probH) > 0 {
		e.ProbH = probH
		e.FutureDue = make(map[int]string, len(probH))
		for h := range probH {
			e.Horizons = append(e.Horizons, h)
			e.FutureDue[h] = barDate.AddDate(0, 0, h).Format(market.DateLayout)
		}
		sort.Ints(e.Horizons)
	}
	return e
}

// Log is a JSONL prediction log. Appends and rewrites are serialized.
type Log struct {
	path string
	mu   sync.Mutex
}

func Open(path string) *Log {
	return &Log{path: path}
}

func (l *Log) Path() string { return l.path }

// Append writes entries at the end of the log, creating it if needed.
func (l *Log) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode prediction %s: %w", e.ID, err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open prediction log: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("append prediction log: %w", err)
	}
	return f.Close()
}

// line is one log line; entry is nil when the line did not decode.
type line struct {
	raw   string
	entry *Entry
}

func (l *Log) readLines() ([]line, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open prediction log: %w", err)
	}
	defer f.Close()

	var out []line
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			out = append(out, line{raw: raw})
			continue
		}
		out = append(out, line{raw: raw, entry: &e})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read prediction log: %w", err)
	}
	return out, nil
}

// ReadAll returns every decodable entry in file order. A missing log is
// empty.
func (l *Log) ReadAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lines, err := l.readLines()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(lines))
	for _, ln := range lines {
		if ln.entry != nil {
			out = append(out, *ln.entry)
		}
	}
	return out, nil
}

// Update passes every decodable entry to fn, which may modify them in
// place and returns how many it changed. When that is non-zero the log
// is rewritten through a temp file and rename; lines that did not decode
// are kept as they were.
func (l *Log) Update(fn func(entries []*Entry) int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lines, err := l.readLines()
	if err != nil {
		return 0, err
	}
	entries := make([]*Entry, 0, len(lines))
	for _, ln := range lines {
		if ln.entry != nil {
			entries = append(entries, ln.entry)
		}
	}
	n := fn(entries)
	if n == 0 {
		return 0, nil
	}
	var buf bytes.Buffer
	for _, ln := range lines {
		if ln.entry == nil {
			buf.WriteString(ln.raw)
		} else {
			b, err := json.Marshal(ln.entry)
			if err != nil {
				return 0, fmt.Errorf("encode prediction %s: %w", ln.entry.ID, err)
			}
			buf.Write(b)
		}
		buf.WriteByte('\n')
	}
	if err := atomicfile.WriteFile(l.path, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("rewrite prediction log: %w", err)
	}
	return n, nil
}
