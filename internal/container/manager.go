// Package container hosts agent nodes as Docker containers. Each node
// gets its own container on a shared bridge network with the NATS URL
// and resolved credentials injected through the environment.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"github.com/mtzanidakis/agency/internal/config"
)

const (
	labelPrefix = "agency"
	networkName = "agency-net"
)

type Manager struct {
	docker      *client.Client
	cfg         config.NodesConfig
	natsURL     string
	mu          sync.RWMutex
	active      map[string]*NodeInfo // agent id -> container
	networkName string
}

type NodeInfo struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// NodeOpts describes the container a node runs in. Env values arrive
// with credential references already resolved.
type NodeOpts struct {
	AgentID string
	Role    string
	Image   string
	Env     map[string]string
	Mounts  []Mount
}

func NewManager(cfg config.NodesConfig, natsURL string) (*Manager, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}

	return &Manager{
		docker:  docker,
		cfg:     cfg,
		natsURL: natsURL,
		active:  make(map[string]*NodeInfo),
	}, nil
}

func (m *Manager) ensureNetwork(ctx context.Context) error {
	if m.networkName != "" {
		return nil
	}

	_, err := m.docker.NetworkInspect(ctx, networkName, network.InspectOptions{})
	if err == nil {
		m.networkName = networkName
		return nil
	}

	_, err = m.docker.NetworkCreate(ctx, networkName, network.CreateOptions{
		Driver: "bridge",
	})
	if err != nil {
		return fmt.Errorf("create network %s: %w", networkName, err)
	}
	m.networkName = networkName
	slog.Info("created docker network", "network", networkName)
	return nil
}

func (m *Manager) StartNode(ctx context.Context, opts NodeOpts) (*NodeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[opts.AgentID]; ok {
		return existing, nil
	}

	if m.cfg.MaxContainers > 0 && len(m.active) >= m.cfg.MaxContainers {
		return nil, fmt.Errorf("max containers (%d) reached", m.cfg.MaxContainers)
	}

	if err := m.ensureNetwork(ctx); err != nil {
		return nil, err
	}

	image := opts.Image
	if image == "" {
		image = m.cfg.Image
	}
	if err := EnsureImage(ctx, m.docker, image); err != nil {
		return nil, err
	}

	containerName := fmt.Sprintf("agency-node-%s", opts.AgentID)

	// Remove any stale container with the same name
	timeout := 5
	_ = m.docker.ContainerStop(ctx, containerName, dockercontainer.StopOptions{Timeout: &timeout})
	_ = m.docker.ContainerRemove(ctx, containerName, dockercontainer.RemoveOptions{Force: true})

	env := []string{
		fmt.Sprintf("NATS_URL=%s", m.natsURL),
		fmt.Sprintf("AGENT_ID=%s", opts.AgentID),
		fmt.Sprintf("AGENT_ROLE=%s", opts.Role),
	}
	if tz := os.Getenv("TZ"); tz != "" {
		env = append(env, fmt.Sprintf("TZ=%s", tz))
	}
	for k, v := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	containerCfg := &dockercontainer.Config{
		Image:  image,
		Env:    env,
		Labels: map[string]string{labelPrefix + ".managed": "true", labelPrefix + ".agent": opts.AgentID},
	}

	hostCfg := &dockercontainer.HostConfig{
		Binds:       buildMounts(opts),
		NetworkMode: dockercontainer.NetworkMode(m.networkName),
	}

	resp, err := m.docker.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	if err := m.docker.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	info := &NodeInfo{
		ID:        resp.ID,
		AgentID:   opts.AgentID,
		Name:      containerName,
		Status:    "running",
		StartedAt: time.Now(),
	}
	m.active[opts.AgentID] = info

	slog.Info("node container started", "agent", opts.AgentID, "container", resp.ID[:12])
	return info, nil
}

func (m *Manager) StopNode(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.active[agentID]
	if !ok {
		return nil
	}

	timeout := 10
	if err := m.docker.ContainerStop(ctx, info.ID, dockercontainer.StopOptions{Timeout: &timeout}); err != nil {
		slog.Warn("failed to stop container gracefully", "container", info.ID[:12], "error", err)
	}

	if err := m.docker.ContainerRemove(ctx, info.ID, dockercontainer.RemoveOptions{Force: true}); err != nil {
		slog.Warn("failed to remove container", "container", info.ID[:12], "error", err)
	}

	delete(m.active, agentID)
	slog.Info("node container stopped", "agent", agentID)
	return nil
}

func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	agentIDs := make([]string, 0, len(m.active))
	for id := range m.active {
		agentIDs = append(agentIDs, id)
	}
	m.mu.RUnlock()

	for _, id := range agentIDs {
		_ = m.StopNode(ctx, id)
	}
}

func (m *Manager) ListRunning() []NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]NodeInfo, 0, len(m.active))
	for _, info := range m.active {
		result = append(result, *info)
	}
	return result
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CleanupStale removes managed containers left behind by a previous
// process that are not tracked by this manager.
func (m *Manager) CleanupStale(ctx context.Context) error {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", labelPrefix+".managed=true")

	containers, err := m.docker.ContainerList(ctx, dockercontainer.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	m.mu.RLock()
	activeIDs := make(map[string]bool)
	for _, info := range m.active {
		activeIDs[info.ID] = true
	}
	m.mu.RUnlock()

	for _, c := range containers {
		if !activeIDs[c.ID] {
			slog.Info("cleaning up stale container", "container", c.ID[:12])
			_ = m.docker.ContainerRemove(ctx, c.ID, dockercontainer.RemoveOptions{Force: true})
		}
	}
	return nil
}
