// Package bus carries committed board snapshots between contexts. The
// in-process Bus is the reference transport; true multi-process delivery
// plugs in behind the Transport interface (file watch, socket, OS IPC)
// without the publishers or subscribers changing.
package bus

import (
	"sync"

	"github.com/ldi/tempo/pkg/models"
)

// Handler receives a published snapshot. Handlers run synchronously on the
// publisher's goroutine; keep them cheap.
type Handler func(snap *models.Snapshot)

// Transport forwards snapshots across a process boundary.
type Transport interface {
	Send(snap *models.Snapshot) error
}

// Bus is an in-process publish/subscribe channel for board snapshots.
type Bus struct {
	mu        sync.RWMutex
	handlers  []Handler
	transport Transport
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every subsequently published snapshot.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// SetTransport attaches a cross-process transport. Send errors are dropped:
// remote delivery is best-effort, local subscribers always see the event.
func (b *Bus) SetTransport(t Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transport = t
}

// Publish fans the snapshot out to all subscribers, then the transport.
// Publishers only call this after the snapshot is durably persisted.
func (b *Bus) Publish(snap *models.Snapshot) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	transport := b.transport
	b.mu.RUnlock()

	for _, h := range handlers {
		h(snap)
	}
	if transport != nil {
		_ = transport.Send(snap)
	}
}
