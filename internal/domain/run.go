package domain

import "time"

// RunCheckpoint marks the end of a completed ingestion run's query window.
// The most recent checkpoint (max date, ties broken by highest id) becomes
// the start of the next run's window. Append-only.
type RunCheckpoint struct {
	ID   int64
	Date time.Time
}
