package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/coinledger/internal/domain"
	"github.com/set-night/coinledger/internal/ledger"
)

const accountColumns = `id, name, secret, balance, tier, tier_until, referrer_id, tax_accrued,
	sent_count, sent_total, received_count, received_total, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Name, &a.Secret, &a.Balance, &a.Tier, &a.TierUntil,
		&a.ReferrerID, &a.TaxAccrued, &a.SentCount, &a.SentTotal,
		&a.ReceivedCount, &a.ReceivedTotal, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (s *Store) Account(ctx context.Context, id int64) (*domain.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *Store) AccountByName(ctx context.Context, name string) (*domain.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE name = $1`, name)
	return scanAccount(row)
}

func (s *Store) CreateAccount(ctx context.Context, name, secret string, referrerID *int64) (*domain.Account, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (name, secret, referrer_id)
		VALUES ($1, $2, $3)
		RETURNING `+accountColumns,
		name, secret, referrerID)
	return scanAccount(row)
}

// RotateSecret replaces the account secret, implicitly revoking every
// outstanding token issued against the old one.
func (s *Store) RotateSecret(ctx context.Context, id int64, secret string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET secret = $2, updated_at = now() WHERE id = $1`, id, secret)
	if err != nil {
		return fmt.Errorf("rotate secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (s *Store) Apply(ctx context.Context, m ledger.Mutation) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return applyMutation(ctx, tx, m)
	})
}

func (s *Store) CollectTax(ctx context.Context, accountID int64) (int64, error) {
	var collected int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		// Row lock so two concurrent collects cannot both move the accrual.
		row := tx.QueryRow(ctx, `SELECT tax_accrued FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
		if err := row.Scan(&collected); err != nil {
			if isNoRows(err) {
				return domain.ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}
		if collected == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE accounts
			SET balance = balance + tax_accrued, tax_accrued = 0, updated_at = now()
			WHERE id = $1`, accountID); err != nil {
			return fmt.Errorf("move tax: %w", err)
		}
		return insertTransaction(ctx, tx, domain.Transaction{
			AccountID:   accountID,
			Amount:      collected,
			Direction:   domain.DirectionIn,
			Description: "Referral tax collected",
		})
	})
	if err != nil {
		return 0, err
	}
	return collected, nil
}

func (s *Store) Transactions(ctx context.Context, accountID int64, limit int) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, peer_id, amount, fee, direction, description, created_at
		FROM transactions WHERE account_id = $1
		ORDER BY id DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.PeerID, &t.Amount, &t.Fee,
			&t.Direction, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
