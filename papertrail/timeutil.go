package papertrail

import (
	"fmt"
	"time"
)

// now is swapped out by tests.
var now = func() time.Time { return time.Now().UTC() }

// parseTimestamp reads the ISO 8601 timestamps Papertrail returns. Values
// without a zone are taken to be UTC. The result is always in UTC.
func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidResponse, value)
	}
	return t, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
