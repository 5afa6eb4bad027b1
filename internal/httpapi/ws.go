package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/set-night/coinledger/internal/domain"
)

const writeTimeout = 10 * time.Second

// wsChannel adapts one websocket connection to notify.Channel. Writes are
// serialized; gorilla connections do not allow concurrent writers.
type wsChannel struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

type wirePayload struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

func (c *wsChannel) Push(ctx context.Context, env domain.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(wirePayload{Text: env.Text, SentAt: env.SentAt})
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}
