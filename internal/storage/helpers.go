package storage

import (
	"fmt"
	"math"
	"time"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// NewMissionID returns a mission identifier derived from t, eg "mission-20250102-150405"
func NewMissionID(t time.Time) string {
	return t.Format("mission-20060102-150405")
}

// toSQLTimestamp maps a nanosecond timestamp onto SQLite's signed 64-bit integers
func toSQLTimestamp(tsNs uint64) (int64, error) {
	if tsNs > math.MaxInt64 {
		return 0, fmt.Errorf("timestamp %d overflows int64", tsNs)
	}
	return int64(tsNs), nil
}
