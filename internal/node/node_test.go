package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mtzanidakis/agency/internal/config"
	"github.com/mtzanidakis/agency/internal/model"
	"github.com/mtzanidakis/agency/internal/natsbus"
)

type recordingReceiver struct {
	mu   sync.Mutex
	msgs []model.AgentMessage
	ch   chan model.AgentMessage
}

func newRecordingReceiver() *recordingReceiver {
	return &recordingReceiver{ch: make(chan model.AgentMessage, 8)}
}

func (r *recordingReceiver) Receive(ctx context.Context, msg model.AgentMessage) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	r.ch <- msg
	return nil
}

func TestLoopbackRegisterIdempotent(t *testing.T) {
	l := NewLoopback(newRecordingReceiver())

	h1, err := l.RegisterNode(context.Background(), "pm-1", Metadata{Role: model.RoleProjectPM})
	if err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}
	h2, err := l.RegisterNode(context.Background(), "pm-1", Metadata{Role: model.RoleProjectPM})
	if err != nil {
		t.Fatalf("RegisterNode again: %v", err)
	}
	if h1.NodeID != h2.NodeID {
		t.Errorf("expected same handle for repeated registration, got %s and %s", h1.NodeID, h2.NodeID)
	}
}

func TestDockerNodeOpts(t *testing.T) {
	opts := nodeOpts("worker-1", Metadata{
		Role: model.RoleWorker,
		Env:  map[string]string{"API_KEY": "k"},
	})

	if opts.AgentID != "worker-1" {
		t.Errorf("expected agent id worker-1, got %s", opts.AgentID)
	}
	if opts.Role != "worker" {
		t.Errorf("expected role worker, got %s", opts.Role)
	}
	if opts.Env["API_KEY"] != "k" {
		t.Errorf("expected env to carry through, got %v", opts.Env)
	}
}

func TestLoopbackTunnelDelivery(t *testing.T) {
	r := newRecordingReceiver()
	l := NewLoopback(r)

	if _, err := l.RegisterNode(context.Background(), "pm-1", Metadata{}); err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}

	msg := model.AgentMessage{ID: "m1", From: "gm", To: "pm-1", Type: model.MsgTaskAssign}
	if err := l.SendViaTunnel(context.Background(), "gm", "pm-1", msg); err != nil {
		t.Fatalf("SendViaTunnel: %v", err)
	}

	select {
	case got := <-r.ch:
		if got.ID != "m1" {
			t.Errorf("expected m1, got %s", got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delivery")
	}
}

func TestLoopbackUnknownNodeFails(t *testing.T) {
	l := NewLoopback(newRecordingReceiver())

	msg := model.AgentMessage{ID: "m1", From: "gm", To: "ghost", Type: model.MsgTaskAssign}
	if err := l.SendViaTunnel(context.Background(), "gm", "ghost", msg); err == nil {
		t.Error("expected error for unregistered recipient")
	}
}

func TestLoopbackUnregister(t *testing.T) {
	l := NewLoopback(newRecordingReceiver())

	h, _ := l.RegisterNode(context.Background(), "pm-1", Metadata{})
	if err := l.UnregisterNode(context.Background(), h); err != nil {
		t.Fatalf("UnregisterNode: %v", err)
	}
	if l.Registered("pm-1") {
		t.Error("expected node to be gone after unregister")
	}
	// Idempotent.
	if err := l.UnregisterNode(context.Background(), h); err != nil {
		t.Errorf("repeated UnregisterNode: %v", err)
	}
}

func TestNATSAdapterRoundTrip(t *testing.T) {
	srv, err := natsbus.NewServer(config.NATSConfig{Port: 0, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("natsbus.NewServer: %v", err)
	}
	defer srv.Close()

	client, err := natsbus.NewClient(srv)
	if err != nil {
		t.Fatalf("natsbus.NewClient: %v", err)
	}
	defer client.Close()

	r := newRecordingReceiver()
	a := NewNATSAdapter(client, r)

	h, err := a.RegisterNode(context.Background(), "worker-1", Metadata{Role: model.RoleWorker})
	if err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}

	msg := model.AgentMessage{ID: "m1", From: "pm-1", To: "worker-1", Type: model.MsgTaskAssign, Payload: []byte(`{"task":"x"}`)}
	if err := a.SendViaTunnel(context.Background(), "pm-1", "worker-1", msg); err != nil {
		t.Fatalf("SendViaTunnel: %v", err)
	}
	client.Flush()

	select {
	case got := <-r.ch:
		if got.ID != "m1" || got.Type != model.MsgTaskAssign {
			t.Errorf("unexpected message: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for tunnel delivery")
	}

	if err := a.UnregisterNode(context.Background(), h); err != nil {
		t.Fatalf("UnregisterNode: %v", err)
	}
	if err := a.SendViaTunnel(context.Background(), "pm-1", "worker-1", msg); err == nil {
		t.Error("expected send to unregistered node to fail")
	}
}
