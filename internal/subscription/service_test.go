package subscription

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/set-night/coinledger/internal/domain"
)

type memStore struct {
	mu          sync.Mutex
	accounts    map[int64]*domain.Account
	codes       map[string]*domain.SubscriptionCode
	activations map[int64]map[int64]bool // code id -> account ids
	nextID      int64
}

func newMemStore(accounts ...*domain.Account) *memStore {
	s := &memStore{
		accounts:    map[int64]*domain.Account{},
		codes:       map[string]*domain.SubscriptionCode{},
		activations: map[int64]map[int64]bool{},
	}
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

func (s *memStore) extendTier(a *domain.Account, days int) {
	from := time.Now()
	if a.TierUntil != nil && a.TierUntil.After(from) {
		from = *a.TierUntil
	}
	until := from.Add(time.Duration(days) * 24 * time.Hour)
	a.Tier = domain.TierPlus
	a.TierUntil = &until
}

func (s *memStore) PurchasePlan(_ context.Context, accountID, price int64, days int, _ domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if a.Balance < price {
		return domain.ErrInsufficientFunds
	}
	a.Balance -= price
	s.extendTier(a, days)
	return nil
}

func (s *memStore) CodeByCode(_ context.Context, code string) (*domain.SubscriptionCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.codes[code]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	cp := *sc
	return &cp, nil
}

func (s *memStore) RedeemCode(_ context.Context, codeID, accountID int64, days int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sc *domain.SubscriptionCode
	for _, c := range s.codes {
		if c.ID == codeID {
			sc = c
			break
		}
	}
	if sc == nil {
		return domain.ErrCodeNotFound
	}
	if s.activations[codeID][accountID] {
		return domain.ErrCodeAlreadyUsed
	}
	if sc.UseCount >= sc.MaxUses {
		return domain.ErrCodeMaxUses
	}

	if s.activations[codeID] == nil {
		s.activations[codeID] = map[int64]bool{}
	}
	s.activations[codeID][accountID] = true
	sc.UseCount++
	s.extendTier(s.accounts[accountID], days)
	return nil
}

func (s *memStore) CreateCode(_ context.Context, c *domain.SubscriptionCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	cp := *c
	s.codes[c.Code] = &cp
	return nil
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

func TestPurchaseExtendsPlusWindow(t *testing.T) {
	store := newMemStore(&domain.Account{ID: 1, Name: "alice", Balance: 10_000})
	svc := NewService(store, &memNotifier{})
	opt := Options()[0]

	if err := svc.Purchase(context.Background(), 1, opt); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	a, _ := store.Account(context.Background(), 1)
	if a.Balance != 10_000-opt.Price {
		t.Errorf("balance = %d", a.Balance)
	}
	if !a.IsPlus() {
		t.Error("account not plus after purchase")
	}

	// A second purchase stacks onto the current window end instead of
	// restarting from now.
	firstUntil := *a.TierUntil
	if err := svc.Purchase(context.Background(), 1, opt); err != nil {
		t.Fatalf("second purchase failed: %v", err)
	}
	a, _ = store.Account(context.Background(), 1)
	if !a.TierUntil.After(firstUntil.Add(24 * time.Hour)) {
		t.Errorf("window not stacked: %v then %v", firstUntil, a.TierUntil)
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	store := newMemStore(&domain.Account{ID: 1, Name: "alice", Balance: 1})
	svc := NewService(store, &memNotifier{})

	if err := svc.Purchase(context.Background(), 1, Options()[0]); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	a, _ := store.Account(context.Background(), 1)
	if a.Balance != 1 || a.IsPlus() {
		t.Errorf("failed purchase mutated account: %+v", a)
	}
}

func TestRedeemCodeOncePerAccount(t *testing.T) {
	store := newMemStore(
		&domain.Account{ID: 1, Name: "alice"},
		&domain.Account{ID: 2, Name: "bob"},
	)
	svc := NewService(store, &memNotifier{})

	codes, err := svc.CreateCodes(context.Background(), 99, 30, 1, 2, "promo")
	if err != nil {
		t.Fatalf("create codes failed: %v", err)
	}
	code := codes[0]

	// Redemption normalizes case and whitespace.
	if _, err := svc.Redeem(context.Background(), "  "+strings.ToLower(code)+" ", 1); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	a, _ := store.Account(context.Background(), 1)
	if !a.IsPlus() {
		t.Error("account not plus after redeem")
	}

	if _, err := svc.Redeem(context.Background(), code, 1); !errors.Is(err, domain.ErrCodeAlreadyUsed) {
		t.Errorf("repeat redeem: got %v, want ErrCodeAlreadyUsed", err)
	}

	// Second account consumes the remaining use; the code is then exhausted.
	if _, err := svc.Redeem(context.Background(), code, 2); err != nil {
		t.Fatalf("second account redeem failed: %v", err)
	}
	store.accounts[3] = &domain.Account{ID: 3, Name: "carol"}
	if _, err := svc.Redeem(context.Background(), code, 3); !errors.Is(err, domain.ErrCodeMaxUses) {
		t.Errorf("exhausted code: got %v, want ErrCodeMaxUses", err)
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	store := newMemStore(&domain.Account{ID: 1, Name: "alice"})
	svc := NewService(store, &memNotifier{})

	if _, err := svc.Redeem(context.Background(), "NOSUCHCODE", 1); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("got %v, want ErrCodeNotFound", err)
	}
}

func TestCreateCodesValidation(t *testing.T) {
	svc := NewService(newMemStore(), &memNotifier{})

	if _, err := svc.CreateCodes(context.Background(), 1, 0, 1, 1, ""); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero days: got %v", err)
	}
	if _, err := svc.CreateCodes(context.Background(), 1, 30, 0, 1, ""); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero count: got %v", err)
	}

	codes, err := svc.CreateCodes(context.Background(), 1, 30, 3, 1, "batch")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(codes) != 3 {
		t.Fatalf("created %d codes, want 3", len(codes))
	}
	for _, c := range codes {
		if len(c) != 16 {
			t.Errorf("code %q has wrong length", c)
		}
	}
}
