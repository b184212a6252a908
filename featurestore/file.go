package featurestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/forecaster/pkg/atomicfile"
	"github.com/rustyeddy/forecaster/pkg/logger"
)

// File stores one JSON file per symbol under a directory.
type File struct {
	dir string
	log *logger.Logger
	now func() time.Time
}

func NewFile(dir string, l *logger.Logger) *File {
	return &File{dir: dir, log: l, now: time.Now}
}

func (f *File) path(symbol string) string {
	return filepath.Join(f.dir, Key(symbol)+".json")
}

func (f *File) Put(ctx context.Context, symbol string, features map[string]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := Record{Symbol: symbol, UpdatedAt: f.now().UTC(), Features: features}
	if err := atomicfile.WriteJSON(f.path(symbol), rec); err != nil {
		return fmt.Errorf("put features %s: %w", symbol, err)
	}
	return nil
}

func (f *File) Get(ctx context.Context, symbol string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := &Record{}
	err := atomicfile.ReadJSON(f.path(symbol), rec)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Snapshot reads every record in the directory. Files that do not
// decode are skipped.
func (f *File) Snapshot(ctx context.Context) ([]Record, error) {
	ents, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, e := range ents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		var rec Record
		if err := atomicfile.ReadJSON(filepath.Join(f.dir, name), &rec); err != nil || rec.Symbol == "" {
			f.log.Debug("skipping feature file", logger.String("file", name), logger.Error(err))
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}
