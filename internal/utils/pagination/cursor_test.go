package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 123000, time.UTC)
	token, err := Encode(At("row-1", created))
	require.NoError(t, err)

	c, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "row-1", c.ID)
	assert.True(t, c.Time().Equal(created))
	assert.False(t, c.IsZero())
}

func TestDecode_EmptyAndInvalid(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.True(t, c.IsZero())

	_, err = Decode("%%%")
	assert.EqualError(t, err, "invalid pagination token")

	_, err = Decode("bm90LWpzb24=") // "not-json"
	assert.EqualError(t, err, "invalid pagination token")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}
