package domain

import "time"

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type Transaction struct {
	ID          int64
	AccountID   int64
	PeerID      *int64
	Amount      int64
	Fee         int64
	Direction   Direction
	Description string
	CreatedAt   time.Time
}
