package domain

import "time"

// SubscriptionCode grants plan days on redemption. Each account may activate
// a given code at most once; the code itself is limited by MaxUses.
type SubscriptionCode struct {
	ID        int64
	Code      string
	PlanDays  int
	MaxUses   int
	UseCount  int
	Comment   string
	CreatedBy int64
	CreatedAt time.Time
}
