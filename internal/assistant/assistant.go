// Package assistant is the sole channel between a human and the agent
// hierarchy. It parses user intent, relays tasks to the GM and turns
// inbound notifications into friendly user-facing reports.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtzanidakis/agency/internal/bus"
	"github.com/mtzanidakis/agency/internal/model"
)

const maxHistoryEntries = 50

// UserInput is one inbound user message from any channel.
type UserInput struct {
	Text    string
	Channel string
	UserID  string
}

// ResponseType tags an outbound user response for presentation.
type ResponseType string

const (
	ResponseAck        ResponseType = "ack"
	ResponseProgress   ResponseType = "progress"
	ResponseCompletion ResponseType = "completion"
	ResponseError      ResponseType = "error"
	ResponseQuery      ResponseType = "query"
)

// UserResponse is what the user sees; delivery is up to the registered
// callback (Telegram bot, web socket, test capture).
type UserResponse struct {
	Text            string
	Type            ResponseType
	TaskID          string
	PercentComplete int
}

// ResponseCallback delivers a response to the user channel.
type ResponseCallback func(UserResponse)

// TaskStore persists task lifecycle state across restarts. Satisfied by
// store.Store; nil disables persistence.
type TaskStore interface {
	SaveTask(t *model.Task) error
}

type Assistant struct {
	id   string
	gmID string
	bus  *bus.Bus

	mu          sync.Mutex
	activeTasks map[string]*model.Task
	history     []string
	lastReport  time.Time
	callback    ResponseCallback
	tasks       TaskStore
}

func New(id, gmID string, b *bus.Bus) *Assistant {
	return &Assistant{
		id:          id,
		gmID:        gmID,
		bus:         b,
		activeTasks: make(map[string]*model.Task),
	}
}

func (a *Assistant) ID() string { return a.id }

func (a *Assistant) Start() {
	a.bus.Subscribe(a.id, a.HandleMessage)
	slog.Info("assistant started", "agent", a.id)
}

func (a *Assistant) Stop() {
	a.bus.Unsubscribe(a.id)
	slog.Info("assistant stopped", "agent", a.id)
}

// SetResponseCallback registers the user delivery channel.
func (a *Assistant) SetResponseCallback(cb ResponseCallback) {
	a.mu.Lock()
	a.callback = cb
	a.mu.Unlock()
}

// SetTaskStore installs task persistence. Call before traffic starts,
// like bus.SetTunnel.
func (a *Assistant) SetTaskStore(ts TaskStore) {
	a.tasks = ts
}

// persistTask records task state. Persistence failure is logged, never
// surfaced; the in-memory task set stays authoritative.
func (a *Assistant) persistTask(t *model.Task) {
	if a.tasks == nil {
		return
	}
	if err := a.tasks.SaveTask(t); err != nil {
		slog.Warn("task persistence failed", "task", t.ID, "error", err)
	}
}

// ReceiveUserInput classifies the input and dispatches on intent. The
// returned response is already friendliness-transformed.
func (a *Assistant) ReceiveUserInput(ctx context.Context, input UserInput) UserResponse {
	if strings.TrimSpace(input.Text) == "" {
		return makeFriendly(UserResponse{
			Text: "I didn't receive any input. Could you say that again?",
			Type: ResponseError,
		})
	}

	a.mu.Lock()
	a.history = append(a.history, input.Text)
	if len(a.history) > maxHistoryEntries {
		a.history = a.history[len(a.history)-maxHistoryEntries:]
	}
	a.mu.Unlock()

	switch parseIntent(input.Text) {
	case IntentTask:
		return a.handleTaskIntent(ctx, input)
	case IntentQuery:
		return a.handleQueryIntent()
	case IntentFeedback:
		return a.handleFeedbackIntent()
	case IntentGreeting:
		return a.handleGreeting()
	default:
		return makeFriendly(UserResponse{
			Text: "I'm not sure what you mean. Could you rephrase, or tell me what task you'd like done?",
			Type: ResponseQuery,
		})
	}
}

func (a *Assistant) handleTaskIntent(ctx context.Context, input UserInput) UserResponse {
	task := model.Task{
		ID:          uuid.NewString(),
		Type:        inferTaskType(input.Text),
		Description: input.Text,
		Priority:    inferPriority(input.Text),
		Status:      model.TaskCreated,
		CreatedAt:   time.Now(),
		CreatedBy:   "user",
	}

	a.mu.Lock()
	a.activeTasks[task.ID] = &task
	a.mu.Unlock()

	err := a.bus.Send(ctx, model.AgentMessage{
		ID:          uuid.NewString(),
		From:        a.id,
		To:          a.gmID,
		Type:        model.MsgTaskAssign,
		Payload:     model.Payload(model.TaskAssignment{Task: &task}),
		Priority:    model.PriorityNormal,
		RequiresAck: true,
	})
	if err != nil {
		slog.Error("failed to send task to gm", "task", task.ID, "error", err)
		a.mu.Lock()
		delete(a.activeTasks, task.ID)
		a.mu.Unlock()
		return makeFriendly(UserResponse{
			Text: "Sorry, I couldn't submit that task. Please try again in a moment.",
			Type: ResponseError,
		})
	}

	a.persistTask(&task)

	return makeFriendly(UserResponse{
		Text:   ackMessage(task),
		Type:   ResponseAck,
		TaskID: task.ID,
	})
}

func (a *Assistant) handleQueryIntent() UserResponse {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.activeTasks) == 0 {
		return makeFriendly(UserResponse{
			Text: "There are no tasks in progress right now. Anything I can help with?",
			Type: ResponseQuery,
		})
	}

	var lines []string
	for _, task := range a.activeTasks {
		desc := task.Description
		// Truncate on a rune boundary; descriptions are often Chinese.
		if runes := []rune(desc); len(runes) > 50 {
			desc = string(runes[:50]) + "..."
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)", desc, statusLabel(task.Status)))
	}

	return makeFriendly(UserResponse{
		Text: fmt.Sprintf("%d task(s) in progress:\n%s", len(a.activeTasks), strings.Join(lines, "\n")),
		Type: ResponseQuery,
	})
}

// Feedback forwarding to the GM is not implemented yet; the user still
// gets an acknowledgment.
// TODO: forward feedback to the owning PM once PM feedback routing exists.
func (a *Assistant) handleFeedbackIntent() UserResponse {
	return makeFriendly(UserResponse{
		Text: "Got your feedback, I'll pass it along to the team. Anything else to adjust?",
		Type: ResponseAck,
	})
}

func (a *Assistant) handleGreeting() UserResponse {
	var greeting string
	switch hour := time.Now().Hour(); {
	case hour < 6:
		greeting = "Up late? Don't overdo it!"
	case hour < 12:
		greeting = "Good morning!"
	case hour < 18:
		greeting = "Good afternoon!"
	default:
		greeting = "Good evening!"
	}

	return makeFriendly(UserResponse{
		Text: greeting + " What can I do for you?",
		Type: ResponseAck,
	})
}

// ReportProgress forwards a progress update to the user. Silently
// ignored when the task is not locally tracked.
func (a *Assistant) ReportProgress(p model.ProgressUpdate) {
	a.mu.Lock()
	_, ok := a.activeTasks[p.TaskID]
	if ok {
		a.lastReport = time.Now()
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	text := fmt.Sprintf("📊 Progress update: %s %d%%", progressBar(p.PercentComplete), p.PercentComplete)
	if p.EstimatedRemainingMs > 0 {
		text += ", about " + formatDuration(p.EstimatedRemainingMs) + " remaining"
	}
	if p.CurrentStep != "" {
		text += "\nCurrent step: " + p.CurrentStep
	}

	a.sendToUser(UserResponse{
		Text:            text,
		Type:            ResponseProgress,
		TaskID:          p.TaskID,
		PercentComplete: p.PercentComplete,
	})
}

// ReportCompletion marks the task completed, reports to the user and
// removes it from the active set.
func (a *Assistant) ReportCompletion(taskID, summary string, artifacts []string) {
	a.mu.Lock()
	task, ok := a.activeTasks[taskID]
	if ok {
		task.Status = model.TaskCompleted
		now := time.Now()
		task.CompletedAt = &now
		delete(a.activeTasks, taskID)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	a.persistTask(task)

	if summary == "" {
		summary = "Task finished."
	}
	text := "✅ Task complete!\n\n" + summary
	if len(artifacts) > 0 {
		text += "\n\nDeliverables:"
		for _, artifact := range artifacts {
			text += "\n- " + artifact
		}
	}
	text += "\n\nAnything else I can help with?"

	a.sendToUser(UserResponse{Text: text, Type: ResponseCompletion, TaskID: taskID})
}

// ReportBlocker tells the user a task is stuck. The task stays active,
// awaiting further instructions.
func (a *Assistant) ReportBlocker(taskID, reason string, suggestedActions []string) {
	a.mu.Lock()
	_, ok := a.activeTasks[taskID]
	a.mu.Unlock()
	if !ok {
		return
	}

	text := "🚧 The task hit a snag: " + reason
	if len(suggestedActions) > 0 {
		text += "\n\nSuggested next steps:"
		for _, action := range suggestedActions {
			text += "\n- " + action
		}
	}
	text += "\n\nHow would you like me to proceed?"

	a.sendToUser(UserResponse{Text: text, Type: ResponseError, TaskID: taskID})
}

// HandleMessage routes inbound notifications from the hierarchy.
func (a *Assistant) HandleMessage(ctx context.Context, msg model.AgentMessage) error {
	switch msg.Type {
	case model.MsgNotifyInfo:
		return a.handleInfoNotification(msg)
	case model.MsgNotifyWarning:
		return a.handleWarningNotification(msg)
	case model.MsgNotifyCritical:
		return a.handleCriticalNotification(msg)
	default:
		slog.Debug("assistant ignoring message", "type", msg.Type, "from", msg.From)
		return nil
	}
}

func (a *Assistant) handleInfoNotification(msg model.AgentMessage) error {
	n, err := model.DecodePayload[model.Notification](msg)
	if err != nil {
		return fmt.Errorf("decode info notification: %w", err)
	}

	switch n.Kind {
	case model.NotifyTaskCompleted:
		var summary string
		var artifacts []string
		if n.Result != nil {
			summary = n.Result.Summary
			for _, artifact := range n.Result.Artifacts {
				artifacts = append(artifacts, artifact.Path)
			}
		}
		a.ReportCompletion(n.TaskID, summary, artifacts)
	case model.NotifyTaskProgress:
		if n.Progress != nil {
			a.ReportProgress(*n.Progress)
		}
	case model.NotifyTaskFailed:
		a.handleTaskFailure(n)
	}
	return nil
}

func (a *Assistant) handleWarningNotification(msg model.AgentMessage) error {
	n, err := model.DecodePayload[model.Notification](msg)
	if err != nil {
		return fmt.Errorf("decode warning notification: %w", err)
	}

	a.sendToUser(UserResponse{
		Text:   "⚠️ Heads up: " + n.Message,
		Type:   ResponseProgress,
		TaskID: n.TaskID,
	})
	return nil
}

func (a *Assistant) handleCriticalNotification(msg model.AgentMessage) error {
	n, err := model.DecodePayload[model.Notification](msg)
	if err != nil {
		return fmt.Errorf("decode critical notification: %w", err)
	}

	if n.Kind == model.NotifyTaskFailed {
		a.handleTaskFailure(n)
		return nil
	}

	reason := n.Reason
	if reason == "" {
		reason = n.Message
	}
	a.ReportBlocker(n.TaskID, reason, n.SuggestedActions)
	return nil
}

// A failed task is removed from the active set and the user is asked
// whether to reschedule.
func (a *Assistant) handleTaskFailure(n model.Notification) {
	a.mu.Lock()
	task, ok := a.activeTasks[n.TaskID]
	if ok {
		task.Status = model.TaskRejected
		delete(a.activeTasks, n.TaskID)
	}
	a.mu.Unlock()
	if ok {
		a.persistTask(task)
	}

	a.sendToUser(UserResponse{
		Text:   fmt.Sprintf("❌ The task ran into a problem: %s\n\nWant me to reschedule it?", n.Error),
		Type:   ResponseError,
		TaskID: n.TaskID,
	})
}

// ActiveTasks snapshots the locally tracked tasks.
func (a *Assistant) ActiveTasks() []model.Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	tasks := make([]model.Task, 0, len(a.activeTasks))
	for _, t := range a.activeTasks {
		tasks = append(tasks, *t)
	}
	return tasks
}

// History returns the bounded conversation history, oldest first.
func (a *Assistant) History() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.history...)
}

func (a *Assistant) sendToUser(resp UserResponse) {
	a.mu.Lock()
	cb := a.callback
	a.mu.Unlock()

	if cb == nil {
		slog.Warn("no user response callback registered", "type", resp.Type)
		return
	}
	cb(makeFriendly(resp))
}

// makeFriendly is the presentation transform applied to all outbound
// user text.
func makeFriendly(resp UserResponse) UserResponse {
	switch {
	case resp.Type == ResponseCompletion && !strings.HasPrefix(resp.Text, "🎉"):
		resp.Text = "🎉 " + resp.Text
	case resp.Type == ResponseError && !strings.HasPrefix(resp.Text, "😅"):
		resp.Text = "😅 " + resp.Text
	case resp.Type == ResponseAck && !strings.HasPrefix(resp.Text, "Got it"):
		resp.Text = "Got it! " + resp.Text
	}
	return resp
}

func ackMessage(task model.Task) string {
	text := "I'll get the team on it right away."
	if estimate := roughEstimate(task.Type); estimate != "" {
		text += " Expect it to take " + estimate + "."
	}
	return text + " I'll keep you posted and let you know the moment it's done."
}

func roughEstimate(taskType model.TaskType) string {
	switch taskType {
	case model.TaskCoding:
		return "a few hours to a day"
	case model.TaskWriting:
		return "a few hours"
	default:
		return ""
	}
}

var statusLabels = map[model.TaskStatus]string{
	model.TaskCreated:   "created",
	model.TaskAssigned:  "assigned",
	model.TaskPlanned:   "planned",
	model.TaskRunning:   "running",
	model.TaskReviewing: "in review",
	model.TaskApproved:  "approved",
	model.TaskRejected:  "sent back",
	model.TaskCompleted: "completed",
}

func statusLabel(status model.TaskStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

func progressBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent / 10
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}
