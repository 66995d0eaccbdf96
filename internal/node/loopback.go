package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mtzanidakis/agency/internal/model"
)

// Loopback hosts every node in-process and delivers tunnel traffic
// straight back into the local receiver. Used when no external node
// backend is configured and throughout the test suite.
type Loopback struct {
	receiver Receiver

	mu    sync.Mutex
	nodes map[string]Handle // agent id -> handle
}

func NewLoopback(r Receiver) *Loopback {
	return &Loopback{
		receiver: r,
		nodes:    make(map[string]Handle),
	}
}

func (l *Loopback) RegisterNode(ctx context.Context, agentID string, meta Metadata) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.nodes[agentID]; ok {
		return h, nil
	}
	h := Handle{NodeID: "node-" + uuid.NewString(), AgentID: agentID}
	l.nodes[agentID] = h
	return h, nil
}

func (l *Loopback) UnregisterNode(ctx context.Context, h Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.nodes, h.AgentID)
	return nil
}

func (l *Loopback) SendViaTunnel(ctx context.Context, from, to string, msg model.AgentMessage) error {
	l.mu.Lock()
	_, ok := l.nodes[to]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("no node registered for %s", to)
	}
	if l.receiver == nil {
		return fmt.Errorf("no receiver wired")
	}
	return l.receiver.Receive(ctx, msg)
}

// Registered reports whether agentID currently holds a node handle.
func (l *Loopback) Registered(agentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.nodes[agentID]
	return ok
}
