package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/set-night/coinledger/internal/domain"
	"github.com/set-night/coinledger/internal/ledger"
)

const invoiceColumns = `id, account_id, fiat_amount, coin_amount, status, created_at, updated_at`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := row.Scan(&inv.ID, &inv.AccountID, &inv.FiatAmount, &inv.CoinAmount,
		&inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	return &inv, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO invoices (id, account_id, fiat_amount, coin_amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		inv.ID, inv.AccountID, inv.FiatAmount, inv.CoinAmount, inv.Status).
		Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (s *Store) InvoiceByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

// MarkInvoicePaid flips pending->paid conditionally; the coin credit applies
// only when this call performed the flip, so replays are no-ops and report
// settled=false.
func (s *Store) MarkInvoicePaid(ctx context.Context, id uuid.UUID, credit ledger.Mutation) (*domain.Invoice, bool, error) {
	var (
		paid    *domain.Invoice
		settled bool
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE invoices SET status = 'paid', updated_at = now()
			WHERE id = $1 AND status = 'pending'
			RETURNING `+invoiceColumns, id)
		inv, err := scanInvoice(row)
		if err != nil {
			if errors.Is(err, domain.ErrInvoiceNotFound) {
				// Already settled or missing; report the current state.
				existing, getErr := s.InvoiceByID(ctx, id)
				if getErr != nil {
					return getErr
				}
				paid = existing
				return nil
			}
			return err
		}
		paid = inv
		settled = true
		return applyMutation(ctx, tx, credit)
	})
	if err != nil {
		return nil, false, err
	}
	return paid, settled, nil
}
