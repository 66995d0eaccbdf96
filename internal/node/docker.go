package node

import (
	"context"
	"log/slog"

	"github.com/mtzanidakis/agency/internal/container"
	"github.com/mtzanidakis/agency/internal/model"
)

// DockerAdapter hosts each agent node in its own container while
// routing tunnel traffic over NATS. Container lifecycle and message
// transport succeed or fail together: a node whose tunnel cannot be
// established is torn down again.
type DockerAdapter struct {
	mgr  *container.Manager
	nats *NATSAdapter
}

func NewDockerAdapter(mgr *container.Manager, nats *NATSAdapter) *DockerAdapter {
	return &DockerAdapter{mgr: mgr, nats: nats}
}

// nodeOpts maps adapter metadata onto a container description.
func nodeOpts(agentID string, meta Metadata) container.NodeOpts {
	return container.NodeOpts{
		AgentID: agentID,
		Role:    string(meta.Role),
		Env:     meta.Env,
	}
}

func (d *DockerAdapter) RegisterNode(ctx context.Context, agentID string, meta Metadata) (Handle, error) {
	info, err := d.mgr.StartNode(ctx, nodeOpts(agentID, meta))
	if err != nil {
		return Handle{}, err
	}

	if _, err := d.nats.RegisterNode(ctx, agentID, meta); err != nil {
		if stopErr := d.mgr.StopNode(ctx, agentID); stopErr != nil {
			slog.Warn("failed to stop container after tunnel failure", "agent", agentID, "error", stopErr)
		}
		return Handle{}, err
	}

	return Handle{NodeID: info.ID, AgentID: agentID}, nil
}

func (d *DockerAdapter) UnregisterNode(ctx context.Context, h Handle) error {
	if err := d.nats.UnregisterNode(ctx, h); err != nil {
		slog.Warn("tunnel unregister failed", "agent", h.AgentID, "error", err)
	}
	return d.mgr.StopNode(ctx, h.AgentID)
}

func (d *DockerAdapter) SendViaTunnel(ctx context.Context, from, to string, msg model.AgentMessage) error {
	return d.nats.SendViaTunnel(ctx, from, to, msg)
}
