package bus

import "github.com/mtzanidakis/agency/internal/model"

// priorityOrder is the strict drain order for the pull-based queue.
var priorityOrder = []model.Priority{
	model.PriorityCritical,
	model.PriorityHigh,
	model.PriorityNormal,
	model.PriorityLow,
}

// Enqueue adds a message to the pull-based priority queue. Messages
// without a priority queue as normal. Enqueued messages are independent
// of push dispatch via Send.
func (b *Bus) Enqueue(msg model.AgentMessage) {
	priority := msg.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}

	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	b.queues[priority] = append(b.queues[priority], msg)
}

// Dequeue removes and returns the next message, draining strictly in
// priority order and FIFO within a level.
func (b *Bus) Dequeue() (model.AgentMessage, bool) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	for _, priority := range priorityOrder {
		q := b.queues[priority]
		if len(q) == 0 {
			continue
		}
		msg := q[0]
		b.queues[priority] = q[1:]
		return msg, true
	}
	return model.AgentMessage{}, false
}

// QueueLen returns the number of queued messages per priority level.
func (b *Bus) QueueLen() map[model.Priority]int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	lengths := make(map[model.Priority]int, len(priorityOrder))
	for _, p := range priorityOrder {
		lengths[p] = len(b.queues[p])
	}
	return lengths
}
