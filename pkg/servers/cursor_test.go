package servers

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 123456000, time.UTC)
	cursor := EncodeCursor(ts, "886313e1-3b8a-5372-9b90-0c9aee199e5d")

	raw, err := base64.StdEncoding.DecodeString(cursor)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-04T05:06:07.123456Z_886313e1-3b8a-5372-9b90-0c9aee199e5d", string(raw))

	gotTime, gotID, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.True(t, ts.Equal(gotTime))
	assert.Equal(t, "886313e1-3b8a-5372-9b90-0c9aee199e5d", gotID)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "%%%"},
		{"no separator", base64.StdEncoding.EncodeToString([]byte("2025-03-04T05:06:07Z"))},
		{"bad time", base64.StdEncoding.EncodeToString([]byte("yesterday_abc"))},
		{"empty id", base64.StdEncoding.EncodeToString([]byte("2025-03-04T05:06:07Z_"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeCursor(tt.cursor)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}
