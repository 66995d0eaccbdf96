package bus

import (
	"testing"

	"github.com/mtzanidakis/agency/internal/model"
)

func queued(id string, p model.Priority) model.AgentMessage {
	return model.AgentMessage{
		ID:       id,
		From:     "a",
		To:       "b",
		Type:     model.MsgTaskProgress,
		Priority: p,
	}
}

func TestDequeuePriorityOrder(t *testing.T) {
	b := New()

	b.Enqueue(queued("A", model.PriorityLow))
	b.Enqueue(queued("B", model.PriorityCritical))
	b.Enqueue(queued("C", model.PriorityNormal))
	b.Enqueue(queued("D", model.PriorityCritical))

	want := []string{"B", "D", "C", "A"}
	for i, id := range want {
		m, ok := b.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d: queue empty", i)
		}
		if m.ID != id {
			t.Errorf("dequeue %d: expected %s, got %s", i, id, m.ID)
		}
	}

	if _, ok := b.Dequeue(); ok {
		t.Error("expected empty queue after draining")
	}
}

func TestDequeueFIFOWithinLevel(t *testing.T) {
	b := New()

	for _, id := range []string{"x", "y", "z"} {
		b.Enqueue(queued(id, model.PriorityHigh))
	}

	for _, want := range []string{"x", "y", "z"} {
		m, _ := b.Dequeue()
		if m.ID != want {
			t.Errorf("expected %s, got %s", want, m.ID)
		}
	}
}

func TestEnqueueDefaultsToNormal(t *testing.T) {
	b := New()

	b.Enqueue(queued("low", model.PriorityLow))
	b.Enqueue(queued("unset", ""))

	m, _ := b.Dequeue()
	if m.ID != "unset" {
		t.Errorf("expected unset-priority message to queue as normal, got %s", m.ID)
	}
}

func TestQueueLen(t *testing.T) {
	b := New()
	b.Enqueue(queued("A", model.PriorityLow))
	b.Enqueue(queued("B", model.PriorityLow))
	b.Enqueue(queued("C", model.PriorityCritical))

	lengths := b.QueueLen()
	if lengths[model.PriorityLow] != 2 || lengths[model.PriorityCritical] != 1 {
		t.Errorf("unexpected queue lengths: %v", lengths)
	}
}
