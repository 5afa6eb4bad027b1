// Package notify delivers state-change notifications to account owners:
// immediately over an open channel when one exists, otherwise into a durable
// per-account queue drained on the next connect.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/coinledger/internal/domain"
)

type QueueStore interface {
	// PushQueue prepends the envelope to the account's durable queue,
	// trimming the oldest entries beyond cap.
	PushQueue(ctx context.Context, env domain.Envelope, cap int) error
	// ListQueue returns the queue in original insertion order.
	ListQueue(ctx context.Context, accountID int64) ([]domain.Envelope, error)
	DeleteEnvelope(ctx context.Context, id int64) error
}

type Service struct {
	registry *Registry
	store    QueueStore
	queueCap int
}

func NewService(registry *Registry, store QueueStore, queueCap int) *Service {
	return &Service{registry: registry, store: store, queueCap: queueCap}
}

// Send pushes to the account's open channel when there is one; otherwise the
// envelope goes to the durable queue. A failed channel push is not retried.
func (s *Service) Send(ctx context.Context, text string, at time.Time, accountID int64) {
	env := domain.Envelope{AccountID: accountID, Text: text, SentAt: at}

	if ch := s.registry.Get(accountID); ch != nil {
		if err := ch.Push(ctx, env); err != nil {
			slog.Warn("channel push failed", "account_id", accountID, "error", err)
		}
		return
	}

	if err := s.store.PushQueue(ctx, env, s.queueCap); err != nil {
		slog.Error("queue notification failed", "account_id", accountID, "error", err)
	}
}

// Broadcast delivers to every open channel. No durable fallback.
func (s *Service) Broadcast(ctx context.Context, text string, at time.Time) {
	for accountID, ch := range s.registry.Snapshot() {
		env := domain.Envelope{AccountID: accountID, Text: text, SentAt: at}
		if err := ch.Push(ctx, env); err != nil {
			slog.Warn("broadcast push failed", "account_id", accountID, "error", err)
		}
	}
}

// Connect binds ch as the account's channel, closing any superseded one, and
// drains the durable queue in original insertion order. An envelope is
// removed only after successful handoff; a failed one stays queued without
// blocking the rest of the drain.
func (s *Service) Connect(ctx context.Context, accountID int64, ch Channel) error {
	if prev := s.registry.Bind(accountID, ch); prev != nil {
		_ = prev.Close()
	}

	queued, err := s.store.ListQueue(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}
	for _, env := range queued {
		if err := ch.Push(ctx, env); err != nil {
			slog.Warn("drain push failed, envelope re-queued", "account_id", accountID, "envelope_id", env.ID, "error", err)
			continue
		}
		if err := s.store.DeleteEnvelope(ctx, env.ID); err != nil {
			slog.Error("clear delivered envelope failed", "account_id", accountID, "envelope_id", env.ID, "error", err)
		}
	}
	return nil
}

// Disconnect unbinds ch if it is still the account's current channel.
func (s *Service) Disconnect(accountID int64, ch Channel) {
	s.registry.Unbind(accountID, ch)
}
