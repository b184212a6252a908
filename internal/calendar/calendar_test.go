package calendar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func TestBack(t *testing.T) {
	c := New()
	tests := []struct {
		end  string
		n    int
		want string
	}{
		{"2024-01-10", 0, "2024-01-10"}, // Wednesday
		{"2024-01-10", 2, "2024-01-08"},
		{"2024-01-10", 3, "2024-01-05"}, // skips the weekend
		{"2024-01-13", 0, "2024-01-12"}, // Saturday rolls back
		{"2024-01-13", 5, "2024-01-05"},
	}
	for _, tt := range tests {
		t.Run(tt.end, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Back(d(tt.end), tt.n).Format(dateLayout))
		})
	}
}

func TestNextAndRange(t *testing.T) {
	c := New("2024-01-15")
	assert.Equal(t, "2024-01-16", c.Next(d("2024-01-12")).Format(dateLayout))

	days := c.Range(d("2024-01-12"), d("2024-01-17"))
	var got []string
	for _, x := range days {
		got = append(got, x.Format(dateLayout))
	}
	assert.Equal(t, []string{"2024-01-12", "2024-01-16", "2024-01-17"}, got)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	c, err := Load(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.True(t, c.IsBusinessDay(d("2024-12-25")))

	path := filepath.Join(dir, "holidays.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"holidays":["2024-12-25"]}`), 0o644))
	c, err = Load(path)
	require.NoError(t, err)
	assert.False(t, c.IsBusinessDay(d("2024-12-25")))

	require.NoError(t, os.WriteFile(path, []byte(`{"holidays":["xmas"]}`), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
