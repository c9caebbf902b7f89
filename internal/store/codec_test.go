package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

func TestEncodeDecodeFields(t *testing.T) {
	fields := map[string]any{
		"name":       "Ada",
		"sessions":   float64(12),
		"birth_date": schema.CalendarDate{Year: 1990, Month: 3, Day: 14},
	}

	blob, err := EncodeFields(fields)
	require.NoError(t, err)

	decoded, err := DecodeFields(blob)
	require.NoError(t, err)
	assert.Equal(t, "Ada", decoded["name"])
	// Dates are stored as wire strings and renormalized on next validation.
	assert.Equal(t, "1990-03-14", decoded["birth_date"])
}

func TestDecodeFieldsEmptyBlob(t *testing.T) {
	decoded, err := DecodeFields(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
