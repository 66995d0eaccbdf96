package model

import (
	"encoding/json"
	"time"
)

// MessageType enumerates the closed set of inter-agent message types.
type MessageType string

const (
	MsgTaskAssign   MessageType = "task.assign"
	MsgTaskProgress MessageType = "task.progress"
	MsgTaskResult   MessageType = "task.result"
	MsgTaskError    MessageType = "task.error"

	MsgCollabRequest  MessageType = "collab.request"
	MsgCollabResponse MessageType = "collab.response"
	MsgCollabSync     MessageType = "collab.sync"

	MsgMgmtCreate    MessageType = "mgmt.create"
	MsgMgmtDestroy   MessageType = "mgmt.destroy"
	MsgMgmtAuthorize MessageType = "mgmt.authorize"

	MsgNotifyInfo     MessageType = "notify.info"
	MsgNotifyWarning  MessageType = "notify.warning"
	MsgNotifyCritical MessageType = "notify.critical"
)

// Priority orders message dispatch and queueing.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Reserved routing targets. Anything else in AgentMessage.To is a direct
// agent ID.
const (
	TargetBroadcast = "broadcast"
	TargetTeam      = "team"
)

// AgentMessage is the unit of inter-agent communication. A message is
// immutable once sent; relays may only append to Hops.
type AgentMessage struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	TeamID string `json:"team_id,omitempty"`

	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Priority    Priority `json:"priority"`
	RequiresAck bool     `json:"requires_ack"`
	TimeoutMs   int64    `json:"timeout_ms,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	Hops      []string  `json:"hops"`
}

// IsAckType reports whether a message type resolves a pending
// acknowledgment when received with a correlated ID.
func (t MessageType) IsAckType() bool {
	return t == MsgTaskResult || t == MsgCollabResponse
}

// Payload marshals v into a raw payload blob. Marshal failures yield a
// nil payload, which receivers treat the same as an absent one.
func Payload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// DecodePayload decodes a message payload into the shape implied by its
// type. Decoding happens exactly once, at the handler boundary.
func DecodePayload[T any](m AgentMessage) (T, error) {
	var v T
	if len(m.Payload) == 0 {
		return v, nil
	}
	err := json.Unmarshal(m.Payload, &v)
	return v, err
}

// TaskAssignment is the payload of task.assign. An initial assignment
// carries the task, its analysis and the authorization grant; a rework
// assignment carries the task ID, feedback and rework categories.
type TaskAssignment struct {
	Task          *Task          `json:"task,omitempty"`
	Analysis      *Analysis      `json:"analysis,omitempty"`
	Authorization *ResourceGrant `json:"authorization,omitempty"`

	TaskID        string   `json:"task_id,omitempty"`
	Feedback      string   `json:"feedback,omitempty"`
	RequireRework []string `json:"require_rework,omitempty"`
}

// TaskResultPayload is the payload of task.result.
type TaskResultPayload struct {
	TaskID string      `json:"task_id"`
	PMID   string      `json:"pm_id"`
	Output *TaskOutput `json:"output,omitempty"`
}

// TaskErrorPayload is the payload of task.error.
type TaskErrorPayload struct {
	TaskID string `json:"task_id"`
	PMID   string `json:"pm_id"`
	Error  string `json:"error,omitempty"`
}

// DestroyNotice is the payload of mgmt.destroy.
type DestroyNotice struct {
	Reason string `json:"reason"`
}

// Notification payload kinds used inside notify.* messages.
const (
	NotifyTaskCompleted = "task.completed"
	NotifyTaskProgress  = "task.progress"
	NotifyTaskFailed    = "task.failed"
	NotifyCriticalRelay = "notify.critical"
)

// Notification is the payload of notify.info/warning/critical messages.
// Kind selects which of the optional fields are meaningful.
type Notification struct {
	Kind   string `json:"kind"`
	TaskID string `json:"task_id,omitempty"`
	From   string `json:"from,omitempty"`

	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`

	Result           *TaskOutput     `json:"result,omitempty"`
	Progress         *ProgressUpdate `json:"progress,omitempty"`
	SuggestedActions []string        `json:"suggested_actions,omitempty"`
}

// ProgressUpdate describes in-flight task progress.
type ProgressUpdate struct {
	TaskID               string `json:"task_id"`
	PercentComplete      int    `json:"percent_complete"`
	CurrentStep          string `json:"current_step"`
	EstimatedRemainingMs int64  `json:"estimated_remaining_ms,omitempty"`
}
