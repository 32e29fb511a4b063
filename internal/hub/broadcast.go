package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/soar/padmouse/internal/supervisor"
)

const (
	fullSyncInterval = 5 * time.Second
	deltaCountSync   = 100
)

// Broadcaster listens for supervisor status changes and broadcasts them to
// the hub.
type Broadcaster struct {
	hub     *Hub
	changes <-chan supervisor.Status

	mu        sync.Mutex
	lastState supervisor.Status
	seq       int64
}

func NewBroadcaster(h *Hub, initial supervisor.Status, changes <-chan supervisor.Status) *Broadcaster {
	return &Broadcaster{
		hub:       h,
		changes:   changes,
		lastState: initial,
	}
}

// Run starts the broadcaster loop until ctx is done or changes is closed.
// Should be run in a goroutine.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(fullSyncInterval)
	defer ticker.Stop()

	var deltaCount int64

	for {
		select {
		case <-ctx.Done():
			return

		case state, ok := <-b.changes:
			if !ok {
				return
			}

			b.mu.Lock()
			delta := ComputeDelta(&b.lastState, &state)
			b.lastState = state
			if delta.IsEmpty() {
				b.mu.Unlock()
				continue
			}

			b.seq++
			deltaCount++

			// Send full sync periodically
			var msg *WSMessage
			if deltaCount >= deltaCountSync {
				msg = NewFullMessage(b.seq, &state)
				deltaCount = 0
			} else {
				msg = NewDeltaMessage(b.seq, delta)
			}
			b.mu.Unlock()
			b.send(msg)

		case <-ticker.C:
			b.mu.Lock()
			b.seq++
			state := b.lastState
			msg := NewFullMessage(b.seq, &state)
			b.mu.Unlock()
			b.send(msg)
		}
	}
}

// SendInitialState sends the current full state to a newly connected client.
func (b *Broadcaster) SendInitialState(c *Client) {
	b.mu.Lock()
	b.seq++
	state := b.lastState
	msg := NewFullMessage(b.seq, &state)
	b.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		b.hub.logger.Error("marshaling initial state", "error", err)
		return
	}
	c.trySend(data)
}

func (b *Broadcaster) send(msg *WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.hub.logger.Error("marshaling message", "type", msg.Type, "error", err)
		return
	}
	b.hub.Broadcast(data)
}
