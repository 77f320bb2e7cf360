package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/vcoin-labs/vcoin/pkg/vcoin"
)

const cursorDelimiter = "|"

// parseHistoryCursor decodes "<rfc3339nano>|<entry_id>". Empty means newest.
func parseHistoryCursor(raw string) (vcoin.HistoryCursor, error) {
	if raw == "" {
		return vcoin.HistoryCursor{}, nil
	}
	parts := strings.SplitN(raw, cursorDelimiter, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return vcoin.HistoryCursor{}, fmt.Errorf("malformed cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return vcoin.HistoryCursor{}, fmt.Errorf("malformed cursor timestamp: %w", err)
	}
	return vcoin.HistoryCursor{CreatedAt: createdAt, EntryID: parts[1]}, nil
}

func formatHistoryCursor(cursor vcoin.HistoryCursor) string {
	if cursor.Zero() {
		return ""
	}
	return cursor.CreatedAt.UTC().Format(time.RFC3339Nano) + cursorDelimiter + cursor.EntryID
}
