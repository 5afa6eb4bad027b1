package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/coinledger/internal/config"
	"github.com/set-night/coinledger/internal/domain"
	"github.com/set-night/coinledger/internal/ledger"
)

const instrumentColumns = `id, code, kind, amount, creator_id, recipient_id,
	max_winners, winners_count, status, answer, expires_at, created_at`

func scanInstrument(row pgx.Row) (*domain.Instrument, error) {
	var i domain.Instrument
	err := row.Scan(&i.ID, &i.Code, &i.Kind, &i.Amount, &i.CreatorID, &i.RecipientID,
		&i.MaxWinners, &i.WinnersCount, &i.Status, &i.Answer, &i.ExpiresAt, &i.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrInstrumentNotFound
		}
		return nil, fmt.Errorf("scan instrument: %w", err)
	}
	return &i, nil
}

func (s *Store) InstrumentByCode(ctx context.Context, code string) (*domain.Instrument, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE code = $1`, code)
	return scanInstrument(row)
}

func (s *Store) CreateInstrument(ctx context.Context, inst *domain.Instrument, funding ledger.Mutation) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := applyMutation(ctx, tx, funding); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO instruments (code, kind, amount, creator_id, recipient_id, max_winners, status, answer)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at`,
			inst.Code, inst.Kind, inst.Amount, inst.CreatorID, inst.RecipientID,
			inst.MaxWinners, inst.Status, inst.Answer)
		if err := row.Scan(&inst.ID, &inst.CreatedAt); err != nil {
			return fmt.Errorf("insert instrument: %w", err)
		}
		return nil
	})
}

// ClaimWinner is the single conditional write deciding a claim. The UPDATE
// only matches while the instrument is still active with a free slot and the
// claimant has not won before, so two racers cannot both take the last slot.
func (s *Store) ClaimWinner(ctx context.Context, instrumentID, claimantID, amount int64, record domain.Transaction) (*domain.Instrument, error) {
	var updated *domain.Instrument
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE instruments
			SET winners_count = winners_count + 1,
			    status = CASE WHEN winners_count + 1 >= max_winners THEN 'claimed' ELSE status END,
			    expires_at = CASE WHEN winners_count + 1 >= max_winners THEN $3 ELSE expires_at END
			WHERE id = $1
			  AND status = 'active'
			  AND winners_count < max_winners
			  AND NOT EXISTS (
				SELECT 1 FROM instrument_winners w
				WHERE w.instrument_id = $1 AND w.account_id = $2
			  )
			RETURNING `+instrumentColumns,
			instrumentID, claimantID, time.Now().Add(config.ClaimedInstrumentTTL))
		inst, err := scanInstrument(row)
		if err != nil {
			if errors.Is(err, domain.ErrInstrumentNotFound) {
				return domain.ErrAlreadyClaimed
			}
			return err
		}
		updated = inst

		if _, err := tx.Exec(ctx, `
			INSERT INTO instrument_winners (instrument_id, account_id) VALUES ($1, $2)`,
			instrumentID, claimantID); err != nil {
			return fmt.Errorf("insert winner: %w", err)
		}

		return applyMutation(ctx, tx, ledger.Mutation{
			Recipient: &ledger.Leg{AccountID: claimantID, Amount: amount},
			Records:   []domain.Transaction{record},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) RecordAttempt(ctx context.Context, a domain.Attempt) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO instrument_attempts (instrument_id, account_id, guess, correct)
		VALUES ($1, $2, $3, $4)`,
		a.InstrumentID, a.AccountID, a.Guess, a.Correct); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *Store) Attempts(ctx context.Context, instrumentID int64) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, instrument_id, account_id, guess, correct, created_at
		FROM instrument_attempts WHERE instrument_id = $1 ORDER BY id`, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		var a domain.Attempt
		if err := rows.Scan(&a.ID, &a.InstrumentID, &a.AccountID, &a.Guess, &a.Correct, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CleanupExpired removes claimed instruments past their TTL and transaction
// records older than the long retention window.
func (s *Store) CleanupExpired(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM instruments WHERE expires_at IS NOT NULL AND expires_at < now()`); err != nil {
		return fmt.Errorf("cleanup instruments: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM transactions WHERE created_at < now() - interval '90 days'`); err != nil {
		return fmt.Errorf("cleanup transactions: %w", err)
	}
	return nil
}
