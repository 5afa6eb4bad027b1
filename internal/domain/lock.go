package domain

import "time"

// JobLock is a store-persisted mutex record. A holder is fresh while last_run
// is within the staleness window; release back-dates last_run instead of
// deleting the row.
type JobLock struct {
	JobName string
	LastRun time.Time
}
