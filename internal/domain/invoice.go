package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusFailed  InvoiceStatus = "failed"
)

// Invoice is a fiat top-up converted into coins when paid.
type Invoice struct {
	ID         uuid.UUID
	AccountID  int64
	FiatAmount decimal.Decimal
	CoinAmount int64
	Status     InvoiceStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
