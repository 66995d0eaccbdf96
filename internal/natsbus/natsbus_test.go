package natsbus

import (
	"testing"
	"time"

	"github.com/mtzanidakis/agency/internal/config"
	"github.com/nats-io/nats.go"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(config.NATSConfig{
		Port:    0, // Random port
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func TestServerStartStop(t *testing.T) {
	srv := newTestServer(t)
	if srv.ClientURL() == "" {
		t.Fatal("expected non-empty client URL")
	}
}

func TestPubSub(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(srv)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	_, err = client.Subscribe(TopicAgentTunnel("pm-1"), func(msg *nats.Msg) {
		received <- string(msg.Data)
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	if err := client.Publish(TopicAgentTunnel("pm-1"), []byte("hello")); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	client.Flush()

	select {
	case data := <-received:
		if data != "hello" {
			t.Errorf("expected 'hello', got '%s'", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishJSON(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(srv)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	_, err = client.Subscribe(TopicEventsMessage, func(msg *nats.Msg) {
		received <- string(msg.Data)
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	payload := map[string]string{"key": "value"}
	if err := client.PublishJSON(TopicEventsMessage, payload); err != nil {
		t.Fatalf("publish json error: %v", err)
	}
	client.Flush()

	select {
	case data := <-received:
		if data != `{"key":"value"}` {
			t.Errorf("expected json, got '%s'", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestTopicNames(t *testing.T) {
	if got := TopicAgentTunnel("pm-1"); got != "agent.pm-1.tunnel" {
		t.Errorf("expected agent.pm-1.tunnel, got %s", got)
	}
	if got := TopicNodeControl("n1"); got != "node.n1.control" {
		t.Errorf("expected node.n1.control, got %s", got)
	}
	if got := TopicEventsTask("t1"); got != "events.task.t1" {
		t.Errorf("expected events.task.t1, got %s", got)
	}
}
