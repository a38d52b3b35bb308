package utils

import (
	"time"
)

// EpochMillis returns t as milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// FormatTimestamp renders epoch milliseconds as RFC 3339 in UTC; zero renders empty.
func FormatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	return FromEpochMillis(ms).Format(time.RFC3339)
}
