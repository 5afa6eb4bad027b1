package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/coinledger/internal/domain"
)

func (s *Store) PushQueue(ctx context.Context, env domain.Envelope, cap int) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO notification_queue (account_id, text, sent_at)
			VALUES ($1, $2, $3)`,
			env.AccountID, env.Text, env.SentAt); err != nil {
			return fmt.Errorf("insert envelope: %w", err)
		}
		// Retention cap: keep the newest cap envelopes per account.
		if _, err := tx.Exec(ctx, `
			DELETE FROM notification_queue
			WHERE account_id = $1 AND id NOT IN (
				SELECT id FROM notification_queue WHERE account_id = $1 ORDER BY id DESC LIMIT $2
			)`, env.AccountID, cap); err != nil {
			return fmt.Errorf("trim queue: %w", err)
		}
		return nil
	})
}

func (s *Store) ListQueue(ctx context.Context, accountID int64) ([]domain.Envelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, text, sent_at
		FROM notification_queue WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var out []domain.Envelope
	for rows.Next() {
		var e domain.Envelope
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Text, &e.SentAt); err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteEnvelope(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM notification_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete envelope: %w", err)
	}
	return nil
}
