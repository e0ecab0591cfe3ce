package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 4, 10, 30, 0, 123, time.FixedZone("MYT", 8*3600))
	token := Encode(Cursor{CreatedAt: at, ID: "ret_01"})
	require.NotEmpty(t, token)

	got, err := Decode(token)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(at))
	assert.Equal(t, "ret_01", got.ID)
}

func TestEncodeZeroCursor(t *testing.T) {
	assert.Empty(t, Encode(Cursor{}))

	got, err := Decode("  ")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, token := range []string{"!!!", "bm90LWpzb24", "e30"} {
		_, err := Decode(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestCursorFollows(t *testing.T) {
	at := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	c := Cursor{CreatedAt: at, ID: "ret_b"}

	assert.True(t, c.Follows(at.Add(-time.Second), "ret_z"))
	assert.True(t, c.Follows(at, "ret_a"))
	assert.False(t, c.Follows(at, "ret_b"))
	assert.False(t, c.Follows(at, "ret_c"))
	assert.False(t, c.Follows(at.Add(time.Second), "ret_a"))
	assert.True(t, Cursor{}.Follows(at, "anything"))
}
