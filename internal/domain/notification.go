package domain

import "time"

// Envelope is a single notification: in flight on an open channel, or parked
// in the account's durable queue until the next connect.
type Envelope struct {
	ID        int64
	AccountID int64
	Text      string
	SentAt    time.Time
}
