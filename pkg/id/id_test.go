package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDsAreSortable(t *testing.T) {
	ts := time.Date(2024, 1, 9, 16, 0, 0, 0, time.UTC)
	a := At(ts)
	b := At(ts)
	c := At(ts.Add(time.Second))
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 9, 16, 0, 0, 0, time.UTC)
	got, err := Time(At(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))

	_, err = Time("not-an-id")
	assert.Error(t, err)
}
