// Package claim implements issuance and redemption of code-bound instruments:
// cheques, multi-winner mystery gifts and airdrops. Issuance escrows the
// funds via a ledger debit; redemption pays winners out of escrow through a
// single conditional status write on the authoritative store.
package claim

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
	InstrumentByCode(ctx context.Context, code string) (*domain.Instrument, error)
	// CreateInstrument persists the instrument and applies the escrow debit
	// in one transaction.
	CreateInstrument(ctx context.Context, inst *domain.Instrument, funding ledger.Mutation) error
	// ClaimWinner performs the conditional claim: bump winners_count and flip
	// status only while the instrument is still active with a free slot, add
	// the claimant to the winners list, credit the payout and append the
	// record — all atomically. Returns domain.ErrAlreadyClaimed when the
	// condition no longer holds or the claimant already won.
	ClaimWinner(ctx context.Context, instrumentID, claimantID, amount int64, record domain.Transaction) (*domain.Instrument, error)
	RecordAttempt(ctx context.Context, a domain.Attempt) error
}

type Service struct {
	store    Store
	cache    *Cache
	notifier ledger.Notifier
}

func NewService(store Store, cache *Cache, notifier ledger.Notifier) *Service {
	return &Service{store: store, cache: cache, notifier: notifier}
}

// IssueCheque escrows amount (+fee, paid by the creator) and returns a
// single-winner instrument, optionally pinned to one recipient.
func (s *Service) IssueCheque(ctx context.Context, creatorID, amount int64, recipientID *int64) (*domain.Instrument, error) {
	return s.issue(ctx, creatorID, domain.Instrument{
		Kind:        domain.KindCheque,
		Amount:      amount,
		RecipientID: recipientID,
		MaxWinners:  1,
	})
}

// CreateMystery escrows amount per winner for winners slots; claimants must
// guess the answer to win.
func (s *Service) CreateMystery(ctx context.Context, creatorID, amount int64, winners int, answer string) (*domain.Instrument, error) {
	if winners < 1 || strings.TrimSpace(answer) == "" {
		return nil, domain.ErrInvalidAmount
	}
	return s.issue(ctx, creatorID, domain.Instrument{
		Kind:       domain.KindMystery,
		Amount:     amount,
		MaxWinners: winners,
		Answer:     normalizeGuess(answer),
	})
}

// CreateAirdrop escrows amount per claimant for slots first-come claims.
func (s *Service) CreateAirdrop(ctx context.Context, creatorID, amount int64, slots int) (*domain.Instrument, error) {
	if slots < 1 {
		return nil, domain.ErrInvalidAmount
	}
	return s.issue(ctx, creatorID, domain.Instrument{
		Kind:       domain.KindAirdrop,
		Amount:     amount,
		MaxWinners: slots,
	})
}

func (s *Service) issue(ctx context.Context, creatorID int64, inst domain.Instrument) (*domain.Instrument, error) {
	if inst.Amount <= 0 || inst.Amount > config.MaxSendLimit {
		return nil, domain.ErrInvalidAmount
	}

	creator, err := s.store.Account(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	total := inst.Amount * int64(inst.MaxWinners)
	if total > config.MaxSendLimit {
		return nil, domain.ErrInvalidAmount
	}
	fee := ledger.Fee(total, creator.FeeRate(config.FeeRateFree, config.FeeRatePlus))
	debit := total + fee
	if creator.Balance < debit {
		return nil, domain.ErrInsufficientFunds
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	inst.Code = code
	inst.CreatorID = creatorID
	inst.Status = domain.StatusActive

	funding := ledger.Mutation{
		Sender: &ledger.Leg{AccountID: creatorID, Amount: debit},
		Fee:    fee,
		Records: []domain.Transaction{
			{AccountID: creatorID, Amount: total, Fee: fee, Direction: domain.DirectionOut, Description: fmt.Sprintf("%s issued: %s", inst.Kind, code)},
		},
	}
	if share := ledger.TaxShare(fee); share > 0 && creator.ReferrerID != nil {
		funding.Taxes = []ledger.Tax{{ReferrerID: *creator.ReferrerID, Amount: share}}
	}

	if err := s.store.CreateInstrument(ctx, &inst, funding); err != nil {
		return nil, fmt.Errorf("create instrument: %w", err)
	}
	return &inst, nil
}

// Claim redeems a cheque or airdrop code for the claimant.
func (s *Service) Claim(ctx context.Context, code string, claimantID int64) (*domain.Instrument, error) {
	inst, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if inst.Kind == domain.KindMystery {
		// Mystery gifts redeem through TryMystery with a guess.
		return nil, domain.ErrWrongGuess
	}
	if err := s.eligible(inst, claimantID); err != nil {
		return nil, err
	}
	return s.win(ctx, inst, claimantID)
}

// TryMystery records the attempt (right or wrong) and, on a correct guess,
// claims a winner slot for the claimant.
func (s *Service) TryMystery(ctx context.Context, code string, claimantID int64, guess string) (*domain.Instrument, error) {
	inst, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if inst.Kind != domain.KindMystery {
		return nil, domain.ErrInstrumentNotFound
	}
	if err := s.eligible(inst, claimantID); err != nil {
		return nil, err
	}

	correct := normalizeGuess(guess) == inst.Answer
	if err := s.store.RecordAttempt(ctx, domain.Attempt{
		InstrumentID: inst.ID,
		AccountID:    claimantID,
		Guess:        guess,
		Correct:      correct,
	}); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	if !correct {
		return nil, domain.ErrWrongGuess
	}
	return s.win(ctx, inst, claimantID)
}

func (s *Service) lookup(ctx context.Context, code string) (*domain.Instrument, error) {
	if inst := s.cache.Get(code); inst != nil {
		return inst, nil
	}
	inst, err := s.store.InstrumentByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.cache.Set(inst)
	return inst, nil
}

func (s *Service) eligible(inst *domain.Instrument, claimantID int64) error {
	if !inst.Active() {
		return domain.ErrAlreadyClaimed
	}
	if inst.CreatorID == claimantID {
		return domain.ErrSelfClaim
	}
	if inst.RecipientID != nil && *inst.RecipientID != claimantID {
		return domain.ErrInstrumentNotFound
	}
	return nil
}

func (s *Service) win(ctx context.Context, inst *domain.Instrument, claimantID int64) (*domain.Instrument, error) {
	record := domain.Transaction{
		AccountID:   claimantID,
		PeerID:      &inst.CreatorID,
		Amount:      inst.Amount,
		Direction:   domain.DirectionIn,
		Description: fmt.Sprintf("%s claimed: %s", inst.Kind, inst.Code),
	}
	updated, err := s.store.ClaimWinner(ctx, inst.ID, claimantID, inst.Amount, record)
	if err != nil {
		// A lost race can leave a stale "active" entry behind; drop it so the
		// next lookup sees the authoritative state.
		s.cache.Invalidate(inst.Code)
		return nil, err
	}
	s.cache.Invalidate(inst.Code)

	s.notifier.Send(ctx, fmt.Sprintf("You claimed %d coins (%s)", inst.Amount, inst.Code), time.Now(), claimantID)
	if updated.Status == domain.StatusClaimed {
		s.notifier.Send(ctx, fmt.Sprintf("Your %s %s is fully claimed", inst.Kind, inst.Code), time.Now(), inst.CreatorID)
	}
	return updated, nil
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func generateCode() (string, error) {
	code := make([]byte, config.CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code), nil
}

func normalizeGuess(g string) string {
	return strings.ToLower(strings.TrimSpace(g))
}
