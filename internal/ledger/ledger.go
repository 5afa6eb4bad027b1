// Package ledger holds the atomic debit/credit core. Every value-transfer
// variant in the system (direct transfer, donation, instrument escrow and
// payout, subscription purchase, top-up credit) reduces to one Mutation
// applied as a single transactional unit by the store.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/set-night/coinledger/internal/config"
	"github.com/set-night/coinledger/internal/domain"
)

// Leg is one side of a mutation. A nil sender leg means value leaves escrow;
// a nil recipient leg means value enters escrow.
type Leg struct {
	AccountID int64
	Amount    int64 // debit for the sender leg, credit for the recipient leg
}

// Tax is a referral accrual credited to a referrer's tax balance.
type Tax struct {
	ReferrerID int64
	Amount     int64
}

// Mutation is the full effect of one ledger operation. The store applies it
// atomically: the sender debit is conditional on sufficient balance, so a
// concurrent spend can never drive a balance negative.
type Mutation struct {
	Sender    *Leg
	Recipient *Leg
	Fee       int64
	Taxes     []Tax
	Records   []domain.Transaction
}

type Store interface {
	Account(ctx context.Context, id int64) (*domain.Account, error)
	Apply(ctx context.Context, m Mutation) error
	// CollectTax atomically moves the accrued referral tax into the balance
	// and returns the amount moved.
	CollectTax(ctx context.Context, accountID int64) (int64, error)
}

// Notifier delivers a fire-and-forget notification outside the atomic
// boundary; failures are the notifier's problem, never the ledger's.
type Notifier interface {
	Send(ctx context.Context, text string, at time.Time, accountID int64)
}

// Reporter receives settled transfers for ops visibility. May be nil.
type Reporter interface {
	TransferCompleted(senderID, recipientID, amount, fee int64)
}

type Service struct {
	store    Store
	notifier Notifier
	reporter Reporter
}

func NewService(store Store, notifier Notifier, reporter Reporter) *Service {
	return &Service{store: store, notifier: notifier, reporter: reporter}
}

// Transfer moves amount from sender to recipient. With payFee the sender is
// debited amount+fee and the recipient credited amount; otherwise the sender
// is debited amount and the recipient credited amount-fee. Half the fee is
// accrued to each side's referrer. All checks run before any write.
func (s *Service) Transfer(ctx context.Context, senderID, recipientID, amount int64, payFee bool, description string) (fee int64, err error) {
	if amount <= 0 || amount > config.MaxSendLimit {
		return 0, domain.ErrInvalidAmount
	}
	if senderID == recipientID {
		return 0, domain.ErrSelfTransfer
	}

	sender, err := s.store.Account(ctx, senderID)
	if err != nil {
		return 0, err
	}
	recipient, err := s.store.Account(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	fee = Fee(amount, sender.FeeRate(config.FeeRateFree, config.FeeRatePlus))
	debit := amount
	credit := amount
	if payFee {
		debit += fee
	} else {
		credit -= fee
	}
	if sender.Balance < debit {
		return 0, domain.ErrInsufficientFunds
	}

	m := Mutation{
		Sender:    &Leg{AccountID: senderID, Amount: debit},
		Recipient: &Leg{AccountID: recipientID, Amount: credit},
		Fee:       fee,
		Taxes:     referralTaxes(fee, sender, recipient),
		Records: []domain.Transaction{
			{AccountID: senderID, PeerID: &recipientID, Amount: amount, Fee: fee, Direction: domain.DirectionOut, Description: description},
			{AccountID: recipientID, PeerID: &senderID, Amount: amount, Fee: fee, Direction: domain.DirectionIn, Description: description},
		},
	}
	if err := s.store.Apply(ctx, m); err != nil {
		return 0, fmt.Errorf("apply transfer: %w", err)
	}

	s.notifier.Send(ctx, fmt.Sprintf("You received %d coins from %s", credit, sender.Name), time.Now(), recipientID)
	if s.reporter != nil {
		s.reporter.TransferCompleted(senderID, recipientID, amount, fee)
	}
	return fee, nil
}

// Donate is a transfer where the sender always covers the fee, so the
// recipient sees the full amount.
func (s *Service) Donate(ctx context.Context, senderID, recipientID, amount int64, description string) (int64, error) {
	return s.Transfer(ctx, senderID, recipientID, amount, true, description)
}

// CollectTax moves an account's accrued referral tax into its balance.
func (s *Service) CollectTax(ctx context.Context, accountID int64) (int64, error) {
	collected, err := s.store.CollectTax(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if collected == 0 {
		return 0, domain.ErrNothingToCollect
	}
	s.notifier.Send(ctx, fmt.Sprintf("Referral tax collected: %d coins", collected), time.Now(), accountID)
	return collected, nil
}

func referralTaxes(fee int64, sender, recipient *domain.Account) []Tax {
	share := TaxShare(fee)
	if share == 0 {
		return nil
	}
	var taxes []Tax
	if sender.ReferrerID != nil {
		taxes = append(taxes, Tax{ReferrerID: *sender.ReferrerID, Amount: share})
	}
	if recipient.ReferrerID != nil {
		taxes = append(taxes, Tax{ReferrerID: *recipient.ReferrerID, Amount: share})
	}
	return taxes
}
