package model

import "time"

// AgentRole places an agent in the hierarchy.
type AgentRole string

const (
	RoleGM         AgentRole = "gm"
	RoleAssistant  AgentRole = "assistant"
	RolePlatformPM AgentRole = "platform-pm"
	RoleProjectPM  AgentRole = "project-pm"
	RoleWorker     AgentRole = "worker"
)

type AgentTier string

const (
	TierL1     AgentTier = "L1"
	TierL2     AgentTier = "L2"
	TierL3     AgentTier = "L3"
	TierWorker AgentTier = "worker"
)

type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentError   AgentStatus = "error"
	AgentOffline AgentStatus = "offline"
)

// LLMQuota bounds an agent's model usage.
type LLMQuota struct {
	MaxTokensPerRequest int64 `json:"max_tokens_per_request"`
	MaxTokensPerDay     int64 `json:"max_tokens_per_day"`
	MaxRequestsPerMin   int   `json:"max_requests_per_min"`
}

// LLMConfig binds an agent to a model. CredentialRef names a vault
// secret resolved at node start; the plaintext never lands in the store.
type LLMConfig struct {
	Model         string   `json:"model"`
	Endpoint      string   `json:"endpoint,omitempty"`
	CredentialRef string   `json:"credential_ref,omitempty"`
	Fallback      string   `json:"fallback,omitempty"`
	Quota         LLMQuota `json:"quota"`
}

// ToolRef names a tool an agent may invoke.
type ToolRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// SkillRef names a skill an agent carries.
type SkillRef struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Version  string   `json:"version,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// KnowledgeRef names a knowledge base an agent may read.
type KnowledgeRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Access string `json:"access,omitempty"`
}

// Limits caps an agent's concurrent work and resource consumption.
type Limits struct {
	MaxConcurrentTasks int   `json:"max_concurrent_tasks"`
	MaxTokensPerDay    int64 `json:"max_tokens_per_day"`
	MaxExecutionTimeMs int64 `json:"max_execution_time_ms"`
	MaxMemoryMB        int   `json:"max_memory_mb"`
}

// AgentConfig is the resolved configuration of a live agent: identity,
// model binding, capability references and limits.
type AgentConfig struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Role     AgentRole `json:"role"`
	Tier     AgentTier `json:"tier"`
	TeamID   string    `json:"team_id,omitempty"`
	ParentPM string    `json:"parent_pm,omitempty"`

	LLM       LLMConfig      `json:"llm"`
	Tools     []ToolRef      `json:"tools,omitempty"`
	Skills    []SkillRef     `json:"skills,omitempty"`
	Knowledge []KnowledgeRef `json:"knowledge,omitempty"`
	Limits    Limits         `json:"limits"`

	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// ConfigOverrides are the caller-supplied fields merged over a template's
// configuration when creating an instance. Set fields win; nil/empty
// fields keep the template value.
type ConfigOverrides struct {
	TeamID    string         `json:"team_id,omitempty"`
	ParentPM  string         `json:"parent_pm,omitempty"`
	CreatedBy string         `json:"created_by,omitempty"`
	LLM       *LLMConfig     `json:"llm,omitempty"`
	Tools     []ToolRef      `json:"tools,omitempty"`
	Skills    []SkillRef     `json:"skills,omitempty"`
	Knowledge []KnowledgeRef `json:"knowledge,omitempty"`
	Limits    *Limits        `json:"limits,omitempty"`
}

// AgentTemplate is an immutable blueprint registered once and updated
// only through the registry's update operation.
type AgentTemplate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`

	Config AgentConfig `json:"config"`

	Version string   `json:"version"`
	Author  string   `json:"author,omitempty"`
	Rating  float64  `json:"rating"`
	Tags    []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InstanceMetrics are running counters for a live agent.
type InstanceMetrics struct {
	TotalTasks        int     `json:"total_tasks"`
	CompletedTasks    int     `json:"completed_tasks"`
	FailedTasks       int     `json:"failed_tasks"`
	AvgCompletionTime float64 `json:"avg_completion_time"`
	TotalTokensUsed   int64   `json:"total_tokens_used"`
}

// AgentInstance is a live agent created by the registry. NodeID is the
// handle obtained from the node adapter; an instance never exists
// without one.
type AgentInstance struct {
	ID         string      `json:"id"`
	TemplateID string      `json:"template_id,omitempty"`
	Config     AgentConfig `json:"config"`
	Status     AgentStatus `json:"status"`

	NodeID       string `json:"node_id,omitempty"`
	ActiveTaskID string `json:"active_task_id,omitempty"`

	Metrics InstanceMetrics `json:"metrics"`

	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}
