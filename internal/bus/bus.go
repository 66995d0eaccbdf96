// Package bus delivers AgentMessage values between named subscribers,
// honoring routing target, priority and acknowledgment contracts.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mtzanidakis/agency/internal/model"
)

const maxHistorySize = 1000

// Handler processes one inbound message. Each agent registers exactly
// one handler; handlers may send further messages before returning.
type Handler func(ctx context.Context, msg model.AgentMessage) error

// Tunnel is the external transport a direct send prefers. Delivery is
// best effort: on failure the bus falls back to the local handler.
type Tunnel interface {
	SendViaTunnel(ctx context.Context, from, to string, msg model.AgentMessage) error
}

// TeamResolver maps a team ID to its member agent IDs. When nil or the
// team is unknown, team sends degrade to a full broadcast.
type TeamResolver interface {
	Members(teamID string) ([]string, bool)
}

// Archiver receives a durable copy of every message the bus records.
// Satisfied by store.Store; archive failures are logged, never fatal.
type Archiver interface {
	ArchiveMessage(msg model.AgentMessage) error
}

// Stats is a point-in-time snapshot of bus state.
type Stats struct {
	TotalMessages int            `json:"total_messages"`
	Subscribers   int            `json:"subscribers"`
	PendingAcks   int            `json:"pending_acks"`
	QueueLengths  map[string]int `json:"queue_lengths"`
}

// HistoryFilter selects messages from the bounded history buffer.
type HistoryFilter struct {
	From  string
	To    string
	Types []model.MessageType
}

type pendingAck struct {
	ch chan json.RawMessage
}

// Bus routes messages between subscribers. Each internal map is guarded
// by its own mutex; handlers are always invoked outside bus locks.
type Bus struct {
	tunnel  Tunnel
	teams   TeamResolver
	archive Archiver

	subMu       sync.RWMutex
	subscribers map[string]Handler

	ackMu       sync.Mutex
	pendingAcks map[string]*pendingAck

	histMu  sync.Mutex
	history []model.AgentMessage

	queueMu sync.Mutex
	queues  map[model.Priority][]model.AgentMessage
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithTunnel sets the external delivery transport.
func WithTunnel(t Tunnel) Option {
	return func(b *Bus) { b.tunnel = t }
}

// WithTeams sets the team membership resolver.
func WithTeams(r TeamResolver) Option {
	return func(b *Bus) { b.teams = r }
}

// WithArchive sets the durable message archive.
func WithArchive(a Archiver) Option {
	return func(b *Bus) { b.archive = a }
}

// SetTunnel installs the external transport after construction. Call
// before traffic starts; the field is not guarded.
func (b *Bus) SetTunnel(t Tunnel) {
	b.tunnel = t
}

// SetTeams installs the team resolver after construction, under the
// same contract as SetTunnel.
func (b *Bus) SetTeams(r TeamResolver) {
	b.teams = r
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[string]Handler),
		pendingAcks: make(map[string]*pendingAck),
		queues:      make(map[model.Priority][]model.AgentMessage),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers the handler for an agent ID. A later call for the
// same ID replaces the earlier handler.
func (b *Bus) Subscribe(agentID string, handler Handler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[agentID] = handler
}

func (b *Bus) Unsubscribe(agentID string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	delete(b.subscribers, agentID)
}

func (b *Bus) handlerFor(agentID string) (Handler, bool) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	h, ok := b.subscribers[agentID]
	return h, ok
}

// Send validates, records and dispatches a message. Unknown direct
// recipients are logged and dropped; broadcast failures are collected,
// never fatal.
func (b *Bus) Send(ctx context.Context, msg model.AgentMessage) error {
	if err := validate(msg); err != nil {
		return err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Priority == "" {
		msg.Priority = model.PriorityNormal
	}
	if msg.Hops == nil {
		msg.Hops = []string{}
	}
	// Record the sender hop, at most once per relay.
	if len(msg.Hops) == 0 || msg.Hops[len(msg.Hops)-1] != msg.From {
		msg.Hops = append(msg.Hops, msg.From)
	}

	b.addToHistory(msg)
	if b.archive != nil {
		if err := b.archive.ArchiveMessage(msg); err != nil {
			slog.Warn("message archive failed", "id", msg.ID, "error", err)
		}
	}

	switch {
	case msg.To == model.TargetBroadcast:
		b.broadcast(ctx, msg, nil)
		return nil
	case msg.To == model.TargetTeam:
		b.broadcastToTeam(ctx, msg)
		return nil
	default:
		return b.sendDirect(ctx, msg.To, msg)
	}
}

// SendWithAck sends msg with RequiresAck forced on and waits up to
// timeout for a correlated task.result or collab.response to arrive via
// Receive. Exactly one of reply payload, timeout error or send error is
// returned.
func (b *Bus) SendWithAck(ctx context.Context, msg model.AgentMessage, timeout time.Duration) (json.RawMessage, error) {
	msg.RequiresAck = true
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &pendingAck{ch: make(chan json.RawMessage, 1)}
	b.ackMu.Lock()
	b.pendingAcks[msg.ID] = p
	b.ackMu.Unlock()

	if err := b.Send(ctx, msg); err != nil {
		b.removeAck(msg.ID)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-p.ch:
		return payload, nil
	case <-timer.C:
		if !b.removeAck(msg.ID) {
			// Resolved concurrently with the timer firing; the payload
			// is already buffered.
			select {
			case payload := <-p.ch:
				return payload, nil
			default:
			}
		}
		return nil, &AckTimeoutError{MessageID: msg.ID, Timeout: timeout}
	case <-ctx.Done():
		b.removeAck(msg.ID)
		return nil, ctx.Err()
	}
}

// removeAck reports whether the entry was still pending.
func (b *Bus) removeAck(id string) bool {
	b.ackMu.Lock()
	defer b.ackMu.Unlock()
	_, ok := b.pendingAcks[id]
	delete(b.pendingAcks, id)
	return ok
}

// Receive is the entry point for messages arriving from the transport.
// A correlated reply resolves its pending acknowledgment and is still
// delivered to the target's handler.
func (b *Bus) Receive(ctx context.Context, msg model.AgentMessage) error {
	if msg.Type.IsAckType() {
		b.ackMu.Lock()
		if p, ok := b.pendingAcks[msg.ID]; ok {
			delete(b.pendingAcks, msg.ID)
			p.ch <- msg.Payload
		}
		b.ackMu.Unlock()
	}

	handler, ok := b.handlerFor(msg.To)
	if !ok {
		slog.Warn("no handler for received message", "to", msg.To, "type", msg.Type)
		return nil
	}
	return handler(ctx, msg)
}

func (b *Bus) sendDirect(ctx context.Context, to string, msg model.AgentMessage) error {
	handler, ok := b.handlerFor(to)
	if !ok {
		// Recipients may not be subscribed yet; not an error.
		slog.Warn("no subscriber for message", "to", to, "type", msg.Type)
		return nil
	}

	if b.tunnel != nil {
		if err := b.tunnel.SendViaTunnel(ctx, msg.From, to, msg); err == nil {
			return nil
		} else {
			slog.Error("tunnel send failed, falling back to local handler", "to", to, "error", err)
		}
	}

	if err := handler(ctx, msg); err != nil {
		return fmt.Errorf("deliver to %s: %w", to, err)
	}
	return nil
}

// broadcast fans out a per-recipient copy to every subscriber except the
// sender, concurrently, and waits for all deliveries. Individual
// failures are counted, not raised.
func (b *Bus) broadcast(ctx context.Context, msg model.AgentMessage, only map[string]bool) {
	b.subMu.RLock()
	targets := make(map[string]Handler, len(b.subscribers))
	for id, h := range b.subscribers {
		if id == msg.From {
			continue
		}
		if only != nil && !only[id] {
			continue
		}
		targets[id] = h
	}
	b.subMu.RUnlock()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for id, handler := range targets {
		wg.Add(1)
		go func(id string, handler Handler) {
			defer wg.Done()
			copied := msg
			copied.To = id
			if err := handler(ctx, copied); err != nil {
				slog.Error("broadcast delivery failed", "to", id, "type", msg.Type, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(id, handler)
	}
	wg.Wait()

	if failed > 0 {
		slog.Warn("broadcast completed with failures", "failed", failed, "recipients", len(targets))
	}
}

func (b *Bus) broadcastToTeam(ctx context.Context, msg model.AgentMessage) {
	if b.teams != nil && msg.TeamID != "" {
		if members, ok := b.teams.Members(msg.TeamID); ok {
			only := make(map[string]bool, len(members))
			for _, m := range members {
				only[m] = true
			}
			b.broadcast(ctx, msg, only)
			return
		}
	}
	// Team membership unavailable; degrade to a full broadcast.
	slog.Warn("team membership unavailable, broadcasting", "team", msg.TeamID)
	b.broadcast(ctx, msg, nil)
}

func (b *Bus) addToHistory(msg model.AgentMessage) {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history = append(b.history, msg)
	if len(b.history) > maxHistorySize {
		b.history = b.history[1:]
	}
}

// History returns messages matching the filter, in send order.
func (b *Bus) History(filter HistoryFilter) []model.AgentMessage {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	var results []model.AgentMessage
	for _, m := range b.history {
		if filter.From != "" && m.From != filter.From {
			continue
		}
		if filter.To != "" && m.To != filter.To {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, m.Type) {
			continue
		}
		results = append(results, m)
	}
	return results
}

func (b *Bus) Stats() Stats {
	b.histMu.Lock()
	total := len(b.history)
	b.histMu.Unlock()

	b.subMu.RLock()
	subs := len(b.subscribers)
	b.subMu.RUnlock()

	b.ackMu.Lock()
	acks := len(b.pendingAcks)
	b.ackMu.Unlock()

	b.queueMu.Lock()
	lengths := make(map[string]int, len(priorityOrder))
	for _, p := range priorityOrder {
		lengths[string(p)] = len(b.queues[p])
	}
	b.queueMu.Unlock()

	return Stats{
		TotalMessages: total,
		Subscribers:   subs,
		PendingAcks:   acks,
		QueueLengths:  lengths,
	}
}

func validate(msg model.AgentMessage) error {
	switch {
	case msg.ID == "":
		return &ValidationError{Field: "id"}
	case msg.From == "":
		return &ValidationError{Field: "from field"}
	case msg.To == "":
		return &ValidationError{Field: "to field"}
	case msg.Type == "":
		return &ValidationError{Field: "type"}
	}
	return nil
}

func containsType(types []model.MessageType, t model.MessageType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
