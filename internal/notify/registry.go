package notify

import (
	"context"
	"sync"

	"github.com/set-night/coinledger/internal/domain"
)

// Channel is one open delivery channel. Pushes are at-most-once: a failed
// push is never retried on the same channel.
type Channel interface {
	Push(ctx context.Context, env domain.Envelope) error
	Close() error
}

// Registry maps accounts to their open channel. It is process-scoped and
// passed by reference; a multi-instance deployment needs an external shared
// registry instead. One channel per account: a new connection for the same
// identity supersedes the previous one.
type Registry struct {
	mu       sync.RWMutex
	channels map[int64]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: map[int64]Channel{}}
}

// Bind installs ch for the account and returns the superseded channel, if any.
func (r *Registry) Bind(accountID int64, ch Channel) Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.channels[accountID]
	r.channels[accountID] = ch
	return prev
}

// Unbind removes ch only while it is still the account's current channel, so
// a stale disconnect cannot evict a superseding connection.
func (r *Registry) Unbind(accountID int64, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channels[accountID] == ch {
		delete(r.channels, accountID)
	}
}

func (r *Registry) Get(accountID int64) Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[accountID]
}

// Snapshot returns the current account->channel mapping for broadcast.
func (r *Registry) Snapshot() map[int64]Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]Channel, len(r.channels))
	for id, ch := range r.channels {
		out[id] = ch
	}
	return out
}
