package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/coinledger/internal/domain"
)

func (s *Store) PurchasePlan(ctx context.Context, accountID, price int64, days int, record domain.Transaction) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts
			SET balance = balance - $2,
			    tier = 'plus',
			    tier_until = GREATEST(COALESCE(tier_until, now()), now()) + make_interval(days => $3),
			    updated_at = now()
			WHERE id = $1 AND balance >= $2`,
			accountID, price, days)
		if err != nil {
			return fmt.Errorf("purchase plan: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrInsufficientFunds
		}
		return insertTransaction(ctx, tx, record)
	})
}

func (s *Store) CodeByCode(ctx context.Context, code string) (*domain.SubscriptionCode, error) {
	var c domain.SubscriptionCode
	err := s.pool.QueryRow(ctx, `
		SELECT sc.id, sc.code, sc.plan_days, sc.max_uses, sc.comment, sc.created_by, sc.created_at,
		       (SELECT count(*) FROM subscription_code_activations a WHERE a.code_id = sc.id)
		FROM subscription_codes sc WHERE sc.code = $1`, code).
		Scan(&c.ID, &c.Code, &c.PlanDays, &c.MaxUses, &c.Comment, &c.CreatedBy, &c.CreatedAt, &c.UseCount)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrCodeNotFound
		}
		return nil, fmt.Errorf("get subscription code: %w", err)
	}
	return &c, nil
}

// RedeemCode activates the code for one account. The activation insert is
// unique per (code, account); the use count is re-checked inside the
// transaction so a concurrent redeemer cannot take the last use twice.
func (s *Store) RedeemCode(ctx context.Context, codeID, accountID int64, days int) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO subscription_code_activations (code_id, account_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, codeID, accountID)
		if err != nil {
			return fmt.Errorf("insert activation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrCodeAlreadyUsed
		}

		var uses, maxUses int
		err = tx.QueryRow(ctx, `
			SELECT (SELECT count(*) FROM subscription_code_activations a WHERE a.code_id = sc.id),
			       sc.max_uses
			FROM subscription_codes sc WHERE sc.id = $1`, codeID).Scan(&uses, &maxUses)
		if err != nil {
			if isNoRows(err) {
				return domain.ErrCodeNotFound
			}
			return fmt.Errorf("recheck code uses: %w", err)
		}
		if uses > maxUses {
			return domain.ErrCodeMaxUses
		}

		tag, err = tx.Exec(ctx, `
			UPDATE accounts
			SET tier = 'plus',
			    tier_until = GREATEST(COALESCE(tier_until, now()), now()) + make_interval(days => $2),
			    updated_at = now()
			WHERE id = $1`, accountID, days)
		if err != nil {
			return fmt.Errorf("extend tier: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAccountNotFound
		}
		return nil
	})
}

func (s *Store) CreateCode(ctx context.Context, c *domain.SubscriptionCode) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscription_codes (code, plan_days, max_uses, comment, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		c.Code, c.PlanDays, c.MaxUses, c.Comment, c.CreatedBy).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription code: %w", err)
	}
	return nil
}

func (s *Store) ListExpiredPaid(ctx context.Context, now time.Time) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE tier <> 'free' AND tier_until IS NOT NULL AND tier_until < $1`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired paid accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *acc)
	}
	return out, rows.Err()
}

func (s *Store) DowngradeTier(ctx context.Context, accountID int64, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET tier = 'free', tier_until = NULL, updated_at = $2
		WHERE id = $1`, accountID, now)
	if err != nil {
		return fmt.Errorf("downgrade tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
