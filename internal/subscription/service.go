// Package subscription covers the plus plan: balance-funded purchases and
// redemption of admin-issued subscription codes.
package subscription

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/set-night/coinledger/internal/config"
	"github.com/set-night/coinledger/internal/domain"
	"github.com/set-night/coinledger/internal/ledger"
)

type Store interface {
	Account(ctx context.Context, id int64) (*domain.Account, error)
	// PurchasePlan debits price conditionally on sufficient balance, extends
	// the tier window by days from max(now, current window end) and appends
	// the transaction record, all in one transaction.
	PurchasePlan(ctx context.Context, accountID, price int64, days int, record domain.Transaction) error
	CodeByCode(ctx context.Context, code string) (*domain.SubscriptionCode, error)
	// RedeemCode inserts the activation (unique per account), re-checks the
	// use count conditionally and extends the tier window, atomically.
	RedeemCode(ctx context.Context, codeID, accountID int64, days int) error
	CreateCode(ctx context.Context, c *domain.SubscriptionCode) error
}

type Option struct {
	Label string
	Price int64
	Days  int
}

func Options() []Option {
	return []Option{
		{Label: "1 month", Price: config.PlanPricePlusMonth, Days: config.PlanDaysMonth},
		{Label: "6 months", Price: config.PlanPricePlusMonth * 5, Days: config.PlanDaysMonth * 6},
		{Label: "12 months", Price: config.PlanPricePlusMonth * 9, Days: config.PlanDaysMonth * 12},
	}
}

type Service struct {
	store    Store
	notifier ledger.Notifier
}

func NewService(store Store, notifier ledger.Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Purchase debits the plan price and extends the plus window.
func (s *Service) Purchase(ctx context.Context, accountID int64, opt Option) error {
	acc, err := s.store.Account(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.Balance < opt.Price {
		return domain.ErrInsufficientFunds
	}

	record := domain.Transaction{
		AccountID:   accountID,
		Amount:      opt.Price,
		Direction:   domain.DirectionOut,
		Description: fmt.Sprintf("Plus subscription: %s", opt.Label),
	}
	if err := s.store.PurchasePlan(ctx, accountID, opt.Price, opt.Days, record); err != nil {
		return fmt.Errorf("purchase plan: %w", err)
	}

	s.notifier.Send(ctx, fmt.Sprintf("Plus activated for %s", opt.Label), time.Now(), accountID)
	return nil
}

// Redeem activates a subscription code for the account. Each account may use
// a code once; the code itself is limited by its max uses.
func (s *Service) Redeem(ctx context.Context, code string, accountID int64) (*domain.SubscriptionCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	sc, err := s.store.CodeByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if sc.UseCount >= sc.MaxUses {
		return nil, domain.ErrCodeMaxUses
	}

	if err := s.store.RedeemCode(ctx, sc.ID, accountID, sc.PlanDays); err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, fmt.Sprintf("Subscription code applied: %d days of plus", sc.PlanDays), time.Now(), accountID)
	return sc, nil
}

// CreateCodes generates count random single- or multi-use codes.
func (s *Service) CreateCodes(ctx context.Context, createdBy int64, days, count, maxUses int, comment string) ([]string, error) {
	if days < 1 || count < 1 || maxUses < 1 {
		return nil, domain.ErrInvalidAmount
	}
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := generateSubscriptionCode()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		sc := &domain.SubscriptionCode{
			Code:      code,
			PlanDays:  days,
			MaxUses:   maxUses,
			Comment:   comment,
			CreatedBy: createdBy,
		}
		if err := s.store.CreateCode(ctx, sc); err != nil {
			return nil, fmt.Errorf("create code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

const subscriptionCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateSubscriptionCode() (string, error) {
	code := make([]byte, 16)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(subscriptionCodeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = subscriptionCodeCharset[n.Int64()]
	}
	return string(code), nil
}
