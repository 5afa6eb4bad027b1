package domain

import "time"

type InstrumentKind string

const (
	KindCheque  InstrumentKind = "cheque"
	KindMystery InstrumentKind = "mystery"
	KindAirdrop InstrumentKind = "airdrop"
)

type InstrumentStatus string

const (
	StatusActive  InstrumentStatus = "active"
	StatusClaimed InstrumentStatus = "claimed"
)

// Instrument is a code-redeemable voucher convertible into a balance credit.
// Amount is per winner; the creator funds amount * max winners up front.
type Instrument struct {
	ID           int64
	Code         string
	Kind         InstrumentKind
	Amount       int64
	CreatorID    int64
	RecipientID  *int64 // pinned recipient for personal cheques
	MaxWinners   int
	WinnersCount int
	Status       InstrumentStatus
	Answer       string // mystery gifts only
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}

func (i *Instrument) Active() bool {
	return i.Status == StatusActive && i.WinnersCount < i.MaxWinners
}

type Attempt struct {
	ID           int64
	InstrumentID int64
	AccountID    int64
	Guess        string
	Correct      bool
	CreatedAt    time.Time
}
