package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/set-night/coinledger/internal/config"
	"github.com/set-night/coinledger/internal/domain"
)

// memStore is an in-memory ledger.Store with the same atomicity contract as
// the postgres adapter: the whole mutation applies or nothing does.
type memStore struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
	records  []domain.Transaction
}

func newMemStore(accounts ...*domain.Account) *memStore {
	s := &memStore{accounts: map[int64]*domain.Account{}}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *memStore) Account(_ context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) Apply(_ context.Context, m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Sender != nil {
		sender, ok := s.accounts[m.Sender.AccountID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		if sender.Balance < m.Sender.Amount {
			return domain.ErrInsufficientFunds
		}
	}
	if m.Recipient != nil {
		if _, ok := s.accounts[m.Recipient.AccountID]; !ok {
			return domain.ErrAccountNotFound
		}
	}

	if m.Sender != nil {
		sender := s.accounts[m.Sender.AccountID]
		sender.Balance -= m.Sender.Amount
		sender.SentCount++
		sender.SentTotal += m.Sender.Amount
	}
	if m.Recipient != nil {
		recipient := s.accounts[m.Recipient.AccountID]
		recipient.Balance += m.Recipient.Amount
		recipient.ReceivedCount++
		recipient.ReceivedTotal += m.Recipient.Amount
	}
	for _, tax := range m.Taxes {
		if ref, ok := s.accounts[tax.ReferrerID]; ok {
			ref.TaxAccrued += tax.Amount
		}
	}
	s.records = append(s.records, m.Records...)
	return nil
}

func (s *memStore) CollectTax(_ context.Context, accountID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	collected := a.TaxAccrued
	a.Balance += collected
	a.TaxAccrued = 0
	return collected, nil
}

type memNotifier struct {
	mu    sync.Mutex
	sends []domain.Envelope
}

func (n *memNotifier) Send(_ context.Context, text string, at time.Time, accountID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, domain.Envelope{AccountID: accountID, Text: text, SentAt: at})
}

func TestFeeRoundsUp(t *testing.T) {
	cases := []struct {
		amount, rate, want int64
	}{
		{50, 2, 1},
		{100, 2, 2},
		{101, 2, 3},
		{1, 2, 1},
		{200, 2, 4},
		{99, 1, 1},
		{0, 2, 0},
	}
	for _, c := range cases {
		if got := Fee(c.amount, c.rate); got != c.want {
			t.Errorf("Fee(%d, %d) = %d, want %d", c.amount, c.rate, got, c.want)
		}
	}
}

func TestTransferRecipientAbsorbsFee(t *testing.T) {
	// Balance 100, transfer 50 at 2%, payFee=false: sender 50, recipient 49.
	store := newMemStore(
		&domain.Account{ID: 1, Name: "alice", Balance: 100},
		&domain.Account{ID: 2, Name: "bob", Balance: 0},
	)
	svc := NewService(store, &memNotifier{}, nil)

	fee, err := svc.Transfer(context.Background(), 1, 2, 50, false, "test")
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if fee != 1 {
		t.Fatalf("fee = %d, want 1", fee)
	}

	sender, _ := store.Account(context.Background(), 1)
	recipient, _ := store.Account(context.Background(), 2)
	if sender.Balance != 50 {
		t.Errorf("sender balance = %d, want 50", sender.Balance)
	}
	if recipient.Balance != 49 {
		t.Errorf("recipient balance = %d, want 49", recipient.Balance)
	}
}

func TestTransferSenderPaysFee(t *testing.T) {
	store := newMemStore(
		&domain.Account{ID: 1, Name: "alice", Balance: 300},
		&domain.Account{ID: 2, Name: "bob", Balance: 10},
	)
	svc := NewService(store, &memNotifier{}, nil)

	fee, err := svc.Transfer(context.Background(), 1, 2, 200, true, "test")
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if fee != 4 {
		t.Fatalf("fee = %d, want 4", fee)
	}

	sender, _ := store.Account(context.Background(), 1)
	recipient, _ := store.Account(context.Background(), 2)
	debit := int64(300) - sender.Balance
	credit := recipient.Balance - 10
	if debit != 204 || credit != 200 {
		t.Errorf("debit = %d credit = %d, want 204/200", debit, credit)
	}
	if debit-credit != fee {
		t.Errorf("debit - credit = %d, want fee %d", debit-credit, fee)
	}
}

func TestTransferBoundaries(t *testing.T) {
	mk := func() (*Service, *memStore) {
		store := newMemStore(
			&domain.Account{ID: 1, Name: "alice", Balance: 2 * config.MaxSendLimit},
			&domain.Account{ID: 2, Name: "bob"},
		)
		return NewService(store, &memNotifier{}, nil), store
	}

	svc, _ := mk()
	if _, err := svc.Transfer(context.Background(), 1, 2, config.MaxSendLimit, false, ""); err != nil {
		t.Errorf("amount at limit failed: %v", err)
	}

	svc, _ = mk()
	if _, err := svc.Transfer(context.Background(), 1, 2, config.MaxSendLimit+1, false, ""); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("amount above limit: got %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Transfer(context.Background(), 1, 2, 0, false, ""); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Transfer(context.Background(), 1, 2, -5, false, ""); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("negative amount: got %v, want ErrInvalidAmount", err)
	}
}

func TestTransferRejectsSelfAndUnknownAndPoor(t *testing.T) {
	store := newMemStore(
		&domain.Account{ID: 1, Name: "alice", Balance: 10},
		&domain.Account{ID: 2, Name: "bob"},
	)
	svc := NewService(store, &memNotifier{}, nil)

	if _, err := svc.Transfer(context.Background(), 1, 1, 5, false, ""); !errors.Is(err, domain.ErrSelfTransfer) {
		t.Errorf("self transfer: got %v, want ErrSelfTransfer", err)
	}
	if _, err := svc.Transfer(context.Background(), 1, 99, 5, false, ""); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("unknown recipient: got %v, want ErrAccountNotFound", err)
	}
	if _, err := svc.Transfer(context.Background(), 1, 2, 11, false, ""); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("poor sender: got %v, want ErrInsufficientFunds", err)
	}

	// No mutation on any failure path.
	sender, _ := store.Account(context.Background(), 1)
	if sender.Balance != 10 || sender.SentCount != 0 {
		t.Errorf("failed transfers mutated sender: %+v", sender)
	}
}

func TestTransferAccruesReferralTax(t *testing.T) {
	refA, refB := int64(10), int64(11)
	store := newMemStore(
		&domain.Account{ID: 1, Name: "alice", Balance: 1000, ReferrerID: &refA},
		&domain.Account{ID: 2, Name: "bob", ReferrerID: &refB},
		&domain.Account{ID: 10, Name: "ref-a"},
		&domain.Account{ID: 11, Name: "ref-b"},
	)
	svc := NewService(store, &memNotifier{}, nil)

	// fee = ceil(250*2/100) = 5, each referrer accrues floor(5/2) = 2.
	if _, err := svc.Transfer(context.Background(), 1, 2, 250, true, ""); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	a, _ := store.Account(context.Background(), 10)
	b, _ := store.Account(context.Background(), 11)
	if a.TaxAccrued != 2 || b.TaxAccrued != 2 {
		t.Errorf("tax accrued = %d/%d, want 2/2", a.TaxAccrued, b.TaxAccrued)
	}
}

func TestPlusTierPaysLowerFee(t *testing.T) {
	until := time.Now().Add(24 * time.Hour)
	store := newMemStore(
		&domain.Account{ID: 1, Name: "alice", Balance: 1000, Tier: domain.TierPlus, TierUntil: &until},
		&domain.Account{ID: 2, Name: "bob"},
	)
	svc := NewService(store, &memNotifier{}, nil)

	fee, err := svc.Transfer(context.Background(), 1, 2, 100, true, "")
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if fee != 1 {
		t.Errorf("plus fee = %d, want 1", fee)
	}
}

func TestTransferNotifiesRecipient(t *testing.T) {
	store := newMemStore(
		&domain.Account{ID: 1, Name: "alice", Balance: 100},
		&domain.Account{ID: 2, Name: "bob"},
	)
	notifier := &memNotifier{}
	svc := NewService(store, notifier, nil)

	if _, err := svc.Transfer(context.Background(), 1, 2, 50, true, ""); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if len(notifier.sends) != 1 || notifier.sends[0].AccountID != 2 {
		t.Errorf("expected one notification to recipient, got %+v", notifier.sends)
	}
}

func TestCollectTax(t *testing.T) {
	store := newMemStore(&domain.Account{ID: 1, Name: "alice", Balance: 5, TaxAccrued: 7})
	svc := NewService(store, &memNotifier{}, nil)

	collected, err := svc.CollectTax(context.Background(), 1)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if collected != 7 {
		t.Errorf("collected = %d, want 7", collected)
	}
	a, _ := store.Account(context.Background(), 1)
	if a.Balance != 12 || a.TaxAccrued != 0 {
		t.Errorf("after collect: balance=%d tax=%d, want 12/0", a.Balance, a.TaxAccrued)
	}

	if _, err := svc.CollectTax(context.Background(), 1); !errors.Is(err, domain.ErrNothingToCollect) {
		t.Errorf("second collect: got %v, want ErrNothingToCollect", err)
	}
}
