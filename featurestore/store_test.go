package featurestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*File)(nil)
var _ Store = (*Redis)(nil)

func TestKey(t *testing.T) {
	// sha1("AAPL")
	assert.Equal(t, "82e2e180365f", Key("AAPL"))
	assert.Len(t, Key("MSFT"), 12)
	assert.NotEqual(t, Key("AAPL"), Key("MSFT"))
}

func TestFilePutGetSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := NewFile(dir, nil)
	written := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return written }

	_, err := f.Get(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.Put(ctx, "MSFT", map[string]float64{"rsi2": 40}))
	require.NoError(t, f.Put(ctx, "AAPL", map[string]float64{"rsi2": 80, "ret_1": 0.01}))
	assert.FileExists(t, filepath.Join(dir, Key("AAPL")+".json"))

	rec, err := f.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", rec.Symbol)
	assert.Equal(t, 80.0, rec.Features["rsi2"])
	assert.True(t, written.Equal(rec.UpdatedAt))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{"), 0o644))
	recs, err := f.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "AAPL", recs[0].Symbol)
	assert.Equal(t, "MSFT", recs[1].Symbol)

	cat := Catalog(recs, written.Add(90*time.Second))
	assert.Equal(t, []CatalogEntry{
		{Symbol: "AAPL", AgeSec: 90, FeatureCount: 2},
		{Symbol: "MSFT", AgeSec: 90, FeatureCount: 1},
	}, cat)
}

func TestFileSnapshotMissingDir(t *testing.T) {
	recs, err := NewFile(filepath.Join(t.TempDir(), "none"), nil).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNewRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedisKeyPrefix(t *testing.T) {
	r := &Redis{prefix: "p"}
	assert.Equal(t, "p:"+Key("AAPL"), r.wrapKey("AAPL"))
}
