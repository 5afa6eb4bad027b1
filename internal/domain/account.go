package domain

import "time"

type Tier string

const (
	TierFree Tier = "free"
	TierPlus Tier = "plus"
)

type Account struct {
	ID         int64
	Name       string
	Secret     string
	Balance    int64
	Tier       Tier
	TierUntil  *time.Time
	ReferrerID *int64
	TaxAccrued int64

	SentCount     int64
	SentTotal     int64
	ReceivedCount int64
	ReceivedTotal int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FeeRate is the tier-dependent transfer fee in percent.
func (a *Account) FeeRate(free, plus int64) int64 {
	if a.IsPlus() {
		return plus
	}
	return free
}

func (a *Account) IsPlus() bool {
	if a.Tier != TierPlus || a.TierUntil == nil {
		return false
	}
	return a.TierUntil.After(time.Now())
}
