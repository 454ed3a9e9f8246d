package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	cursor := EncodeCursor(at.UnixMilli())

	millis, err := DecodeCursor(cursor)
	require.NoError(t, err)
	require.Equal(t, at.UnixMilli(), millis)
}

func TestCursor_EmptyMeansStart(t *testing.T) {
	millis, err := DecodeCursor("")
	require.NoError(t, err)
	require.Zero(t, millis)
}

func TestCursor_RejectsGarbage(t *testing.T) {
	for _, cursor := range []string{"not base64!!", "aGVsbG8", EncodeCursor(-5)} {
		_, err := DecodeCursor(cursor)
		require.Error(t, err, "cursor %q", cursor)
	}
}
