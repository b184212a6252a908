package predlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 6, 14, 0, 0, 0, time.UTC)

func TestNewEntry(t *testing.T) {
	bar := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	e := NewEntry(now, "20240501_120000", "AAPL", 0.61, map[int]float64{5: 0.6, 1: 0.62}, 182.5, bar)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "2024-05-06T14:00:00.000000Z", e.TS)
	assert.Equal(t, []int{1, 5}, e.Horizons)
	assert.Equal(t, map[int]string{1: "2024-05-04", 5: "2024-05-08"}, e.FutureDue)
	assert.Equal(t, "2024-05-03", e.BarDate)
	assert.Equal(t, 0.61, *e.Prob)
	assert.False(t, e.Finalized())

	bare := NewEntry(now, "", "AAPL", 0.5, nil, 1, bar)
	assert.Nil(t, bare.FutureDue)
	assert.Nil(t, bare.Horizons)
}

func TestAppendAndRead(t *testing.T) {
	l := Open(filepath.Join(t.TempDir(), "logs", "predictions.jsonl"))

	got, err := l.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, got)

	bar := now.AddDate(0, 0, -1)
	require.NoError(t, l.Append(
		NewEntry(now, "s", "AAPL", 0.7, map[int]float64{1: 0.7}, 10, bar),
		NewEntry(now, "s", "MSFT", 0.3, map[int]float64{1: 0.3}, 20, bar),
	))
	require.NoError(t, l.Append(NewEntry(now, "s", "NVDA", 0.5, nil, 30, bar)))

	got, err = l.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, "NVDA", got[2].Symbol)
	assert.Equal(t, 0.7, got[0].ProbH[1])
}

func TestConcurrentAppends(t *testing.T) {
	l := Open(filepath.Join(t.TempDir(), "p.jsonl"))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(NewEntry(now, "s", "AAPL", 0.5, nil, 1, now)))
		}()
	}
	wg.Wait()
	got, err := l.ReadAll()
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestUpdateKeepsUndecodableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.jsonl")
	l := Open(path)
	require.NoError(t, l.Append(NewEntry(now, "s", "AAPL", 0.7, map[int]float64{1: 0.7}, 10, now)))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	n, err := l.Update(func(es []*Entry) int {
		es[0].Realized = map[int]int{1: 1}
		return 1
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"realized":{"1":1}`)
	assert.Equal(t, "not json", lines[1])

	got, err := l.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Finalized())
}

func TestUpdateWithoutChangesLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.jsonl")
	l := Open(path)
	require.NoError(t, l.Append(NewEntry(now, "s", "AAPL", 0.7, nil, 10, now)))
	before, err := os.Stat(path)
	require.NoError(t, err)

	n, err := l.Update(func([]*Entry) int { return 0 })
	require.NoError(t, err)
	assert.Zero(t, n)
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}
