// Package model holds the shared data definitions exchanged between the
// gateway components: tasks, inter-agent messages, agent configurations,
// templates and instances. It carries no behavior beyond payload
// encoding helpers.
package model

import "time"

type TaskType string

const (
	TaskCoding     TaskType = "coding"
	TaskWriting    TaskType = "writing"
	TaskResearch   TaskType = "research"
	TaskReview     TaskType = "review"
	TaskDeployment TaskType = "deployment"
	TaskAnalysis   TaskType = "analysis"
	TaskUnknown    TaskType = "unknown"
)

type TaskStatus string

const (
	TaskCreated   TaskStatus = "created"
	TaskAssigned  TaskStatus = "assigned"
	TaskPlanned   TaskStatus = "planned"
	TaskRunning   TaskStatus = "running"
	TaskReviewing TaskStatus = "reviewing"
	TaskApproved  TaskStatus = "approved"
	TaskRejected  TaskStatus = "rejected"
	TaskCompleted TaskStatus = "completed"
)

type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityNormal   TaskPriority = "normal"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// Task is a unit of work owned by exactly one active agent at a time.
// Ownership moves via message sends, never shared mutation.
type Task struct {
	ID          string       `json:"id"`
	Type        TaskType     `json:"type"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`

	ParentTaskID string   `json:"parent_task_id,omitempty"`
	SubtaskIDs   []string `json:"subtask_ids,omitempty"`

	Assignee string `json:"assignee,omitempty"`
	TeamID   string `json:"team_id,omitempty"`

	Checkpoints []Checkpoint `json:"checkpoints,omitempty"`
	Reviews     []Review     `json:"reviews,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`

	CreatedBy string   `json:"created_by"`
	Tags      []string `json:"tags,omitempty"`
}

// Checkpoint records a recoverable point in a task's execution.
type Checkpoint struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	Timestamp time.Time  `json:"timestamp"`
	Status    TaskStatus `json:"status"`
	Note      string     `json:"note,omitempty"`
}

// Review records one pass of the GM's quality gate over a task result.
type Review struct {
	ID        string    `json:"id"`
	Reviewer  string    `json:"reviewer"`
	Timestamp time.Time `json:"timestamp"`
	Decision  string    `json:"decision"`
	Feedback  string    `json:"feedback,omitempty"`
}

// Artifact is a produced output referenced by a task result.
type Artifact struct {
	Type     string `json:"type,omitempty"`
	Path     string `json:"path"`
	Checksum string `json:"checksum,omitempty"`
}

// OutputMetrics carries quality metrics reported with a task result.
// A zero TestCoverage means the metric was not reported and is not
// held against the result.
type OutputMetrics struct {
	TestCoverage    float64 `json:"test_coverage,omitempty"`
	TokensUsed      int64   `json:"tokens_used,omitempty"`
	ExecutionTimeMs int64   `json:"execution_time_ms,omitempty"`
	RetryCount      int     `json:"retry_count,omitempty"`
}

// TaskOutput is what a PM reports back for review.
type TaskOutput struct {
	Status    string         `json:"status"`
	Summary   string         `json:"summary,omitempty"`
	Error     string         `json:"error,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metrics   *OutputMetrics `json:"metrics,omitempty"`
}

// Complexity tiers assessed during task analysis.
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityCritical Complexity = "critical"
)

// Analysis is the GM's feasibility assessment of a task. CanDo false is
// a normal negative outcome carrying a reason, not an error.
type Analysis struct {
	Type              TaskType   `json:"type"`
	Complexity        Complexity `json:"complexity"`
	EstimatedHours    int        `json:"estimated_hours"`
	RequiredSkills    []string   `json:"required_skills"`
	RequiredResources []string   `json:"required_resources"`
	CanDo             bool       `json:"can_do"`
	Reason            string     `json:"reason,omitempty"`
}

// Budget bounds a PM's spend for one task.
type Budget struct {
	MaxTokens int64 `json:"max_tokens"`
	MaxTimeMs int64 `json:"max_time_ms"`
}

// ResourceGrant is the authorization a PM receives with an assignment:
// allow-lists plus a budget.
type ResourceGrant struct {
	LLM       []string `json:"llm"`
	Tools     []string `json:"tools"`
	Knowledge []string `json:"knowledge"`
	Skills    []string `json:"skills"`
	Budget    Budget   `json:"budget"`
}
