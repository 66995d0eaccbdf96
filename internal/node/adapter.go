// Package node abstracts where agent instances physically live. The
// registry obtains a node handle before an instance exists and releases
// it on destroy; the bus hands direct sends to the adapter first and
// falls back to local delivery when tunnel delivery fails.
package node

import (
	"context"

	"github.com/mtzanidakis/agency/internal/model"
)

// Metadata describes the agent an adapter is asked to host.
type Metadata struct {
	Role       model.AgentRole
	TemplateID string
	TeamID     string
	// Env holds environment injected into the node host, credential
	// references already resolved to plaintext by the vault.
	Env map[string]string
}

// Handle identifies a registered node. Opaque to the registry beyond
// equality and the owning agent id.
type Handle struct {
	NodeID  string
	AgentID string
}

// Adapter hosts agent nodes and carries tunnel traffic between them.
type Adapter interface {
	// RegisterNode must succeed before an instance is considered
	// created. A failed registration aborts instance creation.
	RegisterNode(ctx context.Context, agentID string, meta Metadata) (Handle, error)

	// UnregisterNode releases the node. Called exactly once per
	// successful RegisterNode, before the instance is removed.
	UnregisterNode(ctx context.Context, h Handle) error

	// SendViaTunnel delivers msg to the node hosting the recipient.
	// Best effort: the bus falls back to a local handler call on error.
	SendViaTunnel(ctx context.Context, from, to string, msg model.AgentMessage) error
}

// Receiver is the local delivery entry point a tunnel feeds inbound
// messages into. Satisfied by bus.Bus.
type Receiver interface {
	Receive(ctx context.Context, msg model.AgentMessage) error
}
