package config

import "time"

const (
	// Transfer limits (coins)
	MaxSendLimit = 1_000_000

	// Fee rates (percent, rounded up to whole coins)
	FeeRateFree = 2
	FeeRatePlus = 1

	// Transaction log retention per account
	TransactionCap = 50

	// Durable notification queue cap per account
	NotificationQueueCap = 100

	// Claim cache
	ClaimCacheTTL = 30 * time.Second

	// Instrument codes
	CodeLength = 12

	// Claimed instruments are kept this long before cleanup
	ClaimedInstrumentTTL = 24 * time.Hour

	// Maintenance
	SweepJobName  = "subscription-sweep"
	SweepInterval = 1 * time.Hour
	LockStaleness = 5 * time.Minute

	// Subscription plan
	PlanPricePlusMonth = 500 // coins
	PlanDaysMonth      = 30

	// PlanWindow is the longest validity window a plan grants; the sweeper
	// catches up immediately when its last recorded run lags behind it.
	PlanWindow = 30 * 24 * time.Hour
)
