// Package repository is the authoritative postgres store. It implements the
// narrow store interfaces declared by the service packages; every
// state-changing method is a single transaction or a single conditional
// statement, so concurrent operations against the same row serialize here.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/coinledger/internal/config"
	"github.com/set-night/coinledger/internal/domain"
	"github.com/set-night/coinledger/internal/ledger"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// applyMutation executes one ledger mutation on tx. The sender debit is
// conditional on sufficient balance; zero rows affected means a concurrent
// spend won the race.
func applyMutation(ctx context.Context, tx pgx.Tx, m ledger.Mutation) error {
	if m.Sender != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts
			SET balance = balance - $2,
			    sent_count = sent_count + 1,
			    sent_total = sent_total + $2,
			    updated_at = now()
			WHERE id = $1 AND balance >= $2`,
			m.Sender.AccountID, m.Sender.Amount)
		if err != nil {
			return fmt.Errorf("debit sender: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrInsufficientFunds
		}
	}

	if m.Recipient != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts
			SET balance = balance + $2,
			    received_count = received_count + 1,
			    received_total = received_total + $2,
			    updated_at = now()
			WHERE id = $1`,
			m.Recipient.AccountID, m.Recipient.Amount)
		if err != nil {
			return fmt.Errorf("credit recipient: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAccountNotFound
		}
	}

	for _, tax := range m.Taxes {
		if _, err := tx.Exec(ctx, `
			UPDATE accounts SET tax_accrued = tax_accrued + $2, updated_at = now()
			WHERE id = $1`,
			tax.ReferrerID, tax.Amount); err != nil {
			return fmt.Errorf("accrue referral tax: %w", err)
		}
	}

	for _, rec := range m.Records {
		if err := insertTransaction(ctx, tx, rec); err != nil {
			return err
		}
	}
	return nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, rec domain.Transaction) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (account_id, peer_id, amount, fee, direction, description)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.AccountID, rec.PeerID, rec.Amount, rec.Fee, rec.Direction, rec.Description); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	// Retention cap: drop the oldest records past the per-account limit.
	if _, err := tx.Exec(ctx, `
		DELETE FROM transactions
		WHERE account_id = $1 AND id NOT IN (
			SELECT id FROM transactions WHERE account_id = $1 ORDER BY id DESC LIMIT $2
		)`,
		rec.AccountID, config.TransactionCap); err != nil {
		return fmt.Errorf("prune transactions: %w", err)
	}
	return nil
}

// inTx runs fn inside a transaction with rollback on error.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
