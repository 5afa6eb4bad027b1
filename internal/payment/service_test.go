package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/coinledger/internal/domain"
	"github.com/set-night/coinledger/internal/ledger"
	"github.com/shopspring/decimal"
)

type memStore struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*domain.Invoice
	balances map[int64]int64

	// settleAfterRead flips the invoice to paid right after the next read,
	// simulating a concurrent settle winning between read and flip.
	settleAfterRead bool
}

func newMemStore() *memStore {
	return &memStore{invoices: map[uuid.UUID]*domain.Invoice{}, balances: map[int64]int64{}}
}

func (s *memStore) CreateInvoice(_ context.Context, inv *domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.invoices[inv.ID] = &cp
	return nil
}

func (s *memStore) InvoiceByID(_ context.Context, id uuid.UUID) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	cp := *inv
	if s.settleAfterRead {
		inv.Status = domain.InvoiceStatusPaid
		s.settleAfterRead = false
	}
	return &cp, nil
}

func (s *memStore) MarkInvoicePaid(_ context.Context, id uuid.UUID, credit ledger.Mutation) (*domain.Invoice, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, false, domain.ErrInvoiceNotFound
	}
	// Conditional flip: a replay credits nothing and reports settled=false.
	if inv.Status != domain.InvoiceStatusPending {
		cp := *inv
		return &cp, false, nil
	}
	inv.Status = domain.InvoiceStatusPaid
	s.balances[credit.Recipient.AccountID] += credit.Recipient.Amount
	cp := *inv
	return &cp, true, nil
}

type memNotifier struct {
	mu    sync.Mutex
	sends []int64
}

func (n *memNotifier) Send(_ context.Context, _ string, _ time.Time, accountID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, accountID)
}

type memReporter struct {
	mu    sync.Mutex
	coins []int64
}

func (r *memReporter) TopUpConfirmed(_, coins int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coins = append(r.coins, coins)
}

func TestCreateInvoiceConvertsFiat(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &memNotifier{}, nil, 100)

	inv, err := svc.CreateInvoice(context.Background(), 1, decimal.NewFromFloat(2.5))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if inv.CoinAmount != 250 {
		t.Errorf("coins = %d, want 250", inv.CoinAmount)
	}
	if inv.Status != domain.InvoiceStatusPending {
		t.Errorf("status = %s, want pending", inv.Status)
	}
	if inv.ID == uuid.Nil {
		t.Error("invoice id not assigned")
	}
}

func TestCreateInvoiceRejectsNonPositive(t *testing.T) {
	svc := NewService(newMemStore(), &memNotifier{}, nil, 100)

	for _, fiat := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-1)} {
		if _, err := svc.CreateInvoice(context.Background(), 1, fiat); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("CreateInvoice(%s): got %v, want ErrInvalidAmount", fiat, err)
		}
	}

	// Amounts rounding to zero coins are rejected too.
	if _, err := svc.CreateInvoice(context.Background(), 1, decimal.NewFromFloat(0.001)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("sub-coin amount: got %v, want ErrInvalidAmount", err)
	}
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	store := newMemStore()
	notifier := &memNotifier{}
	reporter := &memReporter{}
	svc := NewService(store, notifier, reporter, 100)

	inv, err := svc.CreateInvoice(context.Background(), 1, decimal.NewFromInt(3))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	paid, err := svc.MarkPaid(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if paid.Status != domain.InvoiceStatusPaid {
		t.Errorf("status = %s, want paid", paid.Status)
	}
	if store.balances[1] != 300 {
		t.Errorf("balance = %d, want 300", store.balances[1])
	}

	// Provider callbacks replay; the credit must not double.
	if _, err := svc.MarkPaid(context.Background(), inv.ID); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if store.balances[1] != 300 {
		t.Errorf("balance after replay = %d, want 300", store.balances[1])
	}
	if len(notifier.sends) != 1 || len(reporter.coins) != 1 {
		t.Errorf("replay re-notified: sends=%v reports=%v", notifier.sends, reporter.coins)
	}
}

func TestMarkPaidLostRaceStaysSilent(t *testing.T) {
	store := newMemStore()
	notifier := &memNotifier{}
	reporter := &memReporter{}
	svc := NewService(store, notifier, reporter, 100)

	inv, err := svc.CreateInvoice(context.Background(), 1, decimal.NewFromInt(2))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// A concurrent settle wins after this call reads the invoice as pending
	// and before it performs the flip.
	store.mu.Lock()
	store.settleAfterRead = true
	store.mu.Unlock()

	paid, err := svc.MarkPaid(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if paid.Status != domain.InvoiceStatusPaid {
		t.Errorf("status = %s, want paid", paid.Status)
	}
	if store.balances[1] != 0 {
		t.Errorf("losing settle credited %d", store.balances[1])
	}
	if len(notifier.sends) != 0 || len(reporter.coins) != 0 {
		t.Errorf("losing settle announced: sends=%v reports=%v", notifier.sends, reporter.coins)
	}
}

func TestMarkPaidUnknownInvoice(t *testing.T) {
	svc := NewService(newMemStore(), &memNotifier{}, nil, 100)

	if _, err := svc.MarkPaid(context.Background(), uuid.New()); !errors.Is(err, domain.ErrInvoiceNotFound) {
		t.Fatalf("got %v, want ErrInvoiceNotFound", err)
	}
}
