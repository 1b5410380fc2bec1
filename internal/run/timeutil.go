package run

import (
	"database/sql"
	"errors"
	"time"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// asTime normalizes a scanned timestamp column: lib/pq hands back a native
// time.Time, while modernc.org/sqlite's TEXT-backed columns (this store
// writes CURRENT_TIMESTAMP as sqlite has no native timestamp type) hand
// back a string in sqlite's default datetime format.
func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return val, true
	case string:
		for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, time.RFC3339Nano} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}

		return time.Time{}, false
	case []byte:
		return asTime(string(val))
	default:
		return time.Time{}, false
	}
}
