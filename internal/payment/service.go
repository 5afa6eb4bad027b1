// Package payment handles fiat top-up invoices. An invoice is created
// pending and credits coins through the ledger exactly once when marked paid.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/coinledger/internal/domain"
	"github.com/set-night/coinledger/internal/ledger"
	"github.com/shopspring/decimal"
)

type Store interface {
	CreateInvoice(ctx context.Context, inv *domain.Invoice) error
	InvoiceByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	// MarkInvoicePaid flips pending->paid and applies the coin credit in one
	// transaction. The flip is conditional on status: a replay credits
	// nothing, returns the already-paid invoice and reports settled=false.
	MarkInvoicePaid(ctx context.Context, id uuid.UUID, credit ledger.Mutation) (inv *domain.Invoice, settled bool, err error)
}

// Reporter receives settled top-ups for ops visibility. May be nil.
type Reporter interface {
	TopUpConfirmed(accountID, coins int64)
}

type Service struct {
	store    Store
	notifier ledger.Notifier
	reporter Reporter
	coinRate int64 // coins per fiat unit
}

func NewService(store Store, notifier ledger.Notifier, reporter Reporter, coinRate int64) *Service {
	return &Service{store: store, notifier: notifier, reporter: reporter, coinRate: coinRate}
}

func (s *Service) CreateInvoice(ctx context.Context, accountID int64, fiat decimal.Decimal) (*domain.Invoice, error) {
	if fiat.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}
	coins := fiat.Mul(decimal.NewFromInt(s.coinRate)).IntPart()
	if coins <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	inv := &domain.Invoice{
		ID:         uuid.New(),
		AccountID:  accountID,
		FiatAmount: fiat,
		CoinAmount: coins,
		Status:     domain.InvoiceStatusPending,
	}
	if err := s.store.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}

// MarkPaid settles the invoice and credits the coins. Safe to replay.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	inv, err := s.store.InvoiceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == domain.InvoiceStatusPaid {
		return inv, nil
	}

	credit := ledger.Mutation{
		Recipient: &ledger.Leg{AccountID: inv.AccountID, Amount: inv.CoinAmount},
		Records: []domain.Transaction{
			{AccountID: inv.AccountID, Amount: inv.CoinAmount, Direction: domain.DirectionIn, Description: fmt.Sprintf("Top-up invoice %s", inv.ID)},
		},
	}
	paid, settled, err := s.store.MarkInvoicePaid(ctx, id, credit)
	if err != nil {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}
	// A concurrent settle may have won between the read above and the flip;
	// only the call that performed the flip announces it.
	if !settled {
		return paid, nil
	}

	s.notifier.Send(ctx, fmt.Sprintf("Top-up confirmed: %d coins", paid.CoinAmount), time.Now(), paid.AccountID)
	if s.reporter != nil {
		s.reporter.TopUpConfirmed(paid.AccountID, paid.CoinAmount)
	}
	return paid, nil
}
