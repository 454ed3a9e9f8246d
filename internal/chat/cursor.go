package chat

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Cursors are opaque to clients: base64 over the unix-millis creation time
// of the oldest message in the page. A cursor encoding zero (or an absent
// cursor) means "start from the newest message".

func EncodeCursor(millis int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(millis, 10)))
}

func DecodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("decode cursor: %w", err)
	}
	millis, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode cursor: %w", err)
	}
	if millis < 0 {
		return 0, fmt.Errorf("decode cursor: negative timestamp %d", millis)
	}
	return millis, nil
}

// cursorMillis truncates to the precision the cursor carries so that the
// "strictly older" comparison in storage matches the encoded value.
func cursorMillis(at time.Time) int64 { return at.UnixMilli() }
