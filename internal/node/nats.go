package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/mtzanidakis/agency/internal/model"
	"github.com/mtzanidakis/agency/internal/natsbus"
)

// NATSAdapter hosts nodes behind per-agent NATS tunnel topics. Each
// registered node subscribes agent.<id>.tunnel and feeds decoded frames
// into the local receiver, so agents on any process connected to the
// same NATS server are reachable.
type NATSAdapter struct {
	client   *natsbus.Client
	receiver Receiver

	mu   sync.Mutex
	subs map[string]*nats.Subscription // agent id -> tunnel subscription
}

func NewNATSAdapter(client *natsbus.Client, r Receiver) *NATSAdapter {
	return &NATSAdapter{
		client:   client,
		receiver: r,
		subs:     make(map[string]*nats.Subscription),
	}
}

func (a *NATSAdapter) RegisterNode(ctx context.Context, agentID string, meta Metadata) (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.subs[agentID]; ok {
		return Handle{NodeID: "nats-" + agentID, AgentID: agentID}, nil
	}

	sub, err := a.client.Subscribe(natsbus.TopicAgentTunnel(agentID), func(m *nats.Msg) {
		var msg model.AgentMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Warn("tunnel frame decode failed", "agent", agentID, "error", err)
			return
		}
		if err := a.receiver.Receive(context.Background(), msg); err != nil {
			slog.Warn("tunnel delivery failed", "agent", agentID, "msg", msg.ID, "error", err)
		}
	})
	if err != nil {
		return Handle{}, fmt.Errorf("subscribe tunnel for %s: %w", agentID, err)
	}

	a.subs[agentID] = sub
	return Handle{NodeID: "nats-" + uuid.NewString(), AgentID: agentID}, nil
}

func (a *NATSAdapter) UnregisterNode(ctx context.Context, h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub, ok := a.subs[h.AgentID]
	if !ok {
		return nil
	}
	delete(a.subs, h.AgentID)
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe tunnel for %s: %w", h.AgentID, err)
	}
	return nil
}

func (a *NATSAdapter) SendViaTunnel(ctx context.Context, from, to string, msg model.AgentMessage) error {
	a.mu.Lock()
	_, ok := a.subs[to]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("no tunnel registered for %s", to)
	}
	if err := a.client.PublishJSON(natsbus.TopicAgentTunnel(to), msg); err != nil {
		return fmt.Errorf("publish tunnel frame to %s: %w", to, err)
	}
	return nil
}
