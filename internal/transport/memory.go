package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/fieldmesh/iiotgw/internal/node"
)

// MemTransport is an in-process Transport backed by Go channels — used for
// embedding the gateway without an external broker and for tests that
// don't need real NATS. It satisfies the same Transport interface as
// NATSTransport, so Manager is agnostic to which binding it holds
// (SPEC_FULL.md §6).
type MemTransport struct {
	mu      sync.Mutex
	inboxes map[node.Pipe]chan Message
}

func NewMem() *MemTransport {
	return &MemTransport{inboxes: make(map[node.Pipe]chan Message)}
}

// RegisterPipe allocates an inbox for pipe if one doesn't already exist.
func (m *MemTransport) RegisterPipe(pipe node.Pipe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.inboxes[pipe]; !exists {
		m.inboxes[pipe] = make(chan Message, 64)
	}
}

func (m *MemTransport) Send(pipe node.Pipe, msg Message) error {
	m.mu.Lock()
	inbox, ok := m.inboxes[pipe]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: no inbox for pipe %s", pipe)
	}
	select {
	case inbox <- msg:
		return nil
	default:
		return fmt.Errorf("transport: inbox for pipe %s is full", pipe)
	}
}

// Recv drains the first message available across every registered pipe.
// Intended for tests and simple single-dispatcher embeddings rather than
// high-throughput use.
func (m *MemTransport) Recv(ctx context.Context) (node.Pipe, Message, error) {
	for {
		m.mu.Lock()
		for pipe, inbox := range m.inboxes {
			select {
			case msg := <-inbox:
				m.mu.Unlock()
				return pipe, msg, nil
			default:
			}
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", Message{}, ctx.Err()
		default:
		}
	}
}

// RecvFrom blocks on a single pipe's inbox — the typical way a node's
// worker loop consumes its own messages rather than polling every pipe via
// Recv.
func (m *MemTransport) RecvFrom(ctx context.Context, pipe node.Pipe) (Message, error) {
	m.mu.Lock()
	inbox, ok := m.inboxes[pipe]
	m.mu.Unlock()
	if !ok {
		return Message{}, fmt.Errorf("transport: no inbox for pipe %s", pipe)
	}
	select {
	case msg := <-inbox:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (m *MemTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inbox := range m.inboxes {
		close(inbox)
	}
	m.inboxes = make(map[node.Pipe]chan Message)
	return nil
}
