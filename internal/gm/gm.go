// Package gm implements the top-level decision engine: it analyzes
// incoming tasks, appoints and authorizes PMs, reviews their results
// and tears them down when the work is done.
package gm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mtzanidakis/agency/internal/bus"
	"github.com/mtzanidakis/agency/internal/config"
	"github.com/mtzanidakis/agency/internal/model"
	"github.com/mtzanidakis/agency/internal/registry"
)

// Appointment binds a live PM to a domain and an authorization grant.
// At most one appointment per PM id; a platform-pm appointment survives
// normal task completion.
type Appointment struct {
	PMID   string              `json:"pm_id"`
	PMType model.AgentRole     `json:"pm_type"`
	Domain string              `json:"domain"`
	TaskID string              `json:"task_id,omitempty"`
	Grant  model.ResourceGrant `json:"grant"`
}

// ReviewDecision is the outcome of the GM's quality gate. It only
// drives the next message sent, never persisted.
type ReviewDecision struct {
	Approved      bool
	Feedback      string
	RequireRework []string
}

// TaskOutcome is the GM's answer to a submitted user task.
type TaskOutcome struct {
	Accepted bool   `json:"accepted"`
	PMID     string `json:"pm_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type GM struct {
	id       string
	cfg      config.GMConfig
	registry *registry.Registry
	bus      *bus.Bus

	mu           sync.Mutex
	appointments map[string]*Appointment // pm id -> appointment
	reworkRounds map[string]int          // task id -> rejected reviews so far
}

func New(id string, cfg config.GMConfig, reg *registry.Registry, b *bus.Bus) *GM {
	return &GM{
		id:           id,
		cfg:          cfg,
		registry:     reg,
		bus:          b,
		appointments: make(map[string]*Appointment),
		reworkRounds: make(map[string]int),
	}
}

func (g *GM) ID() string { return g.id }

// Start registers the GM's message handler on the bus.
func (g *GM) Start() {
	g.bus.Subscribe(g.id, g.HandleMessage)
	slog.Info("gm started", "agent", g.id)
}

// Stop dismisses every active PM and unsubscribes.
func (g *GM) Stop(ctx context.Context) {
	g.mu.Lock()
	pmIDs := make([]string, 0, len(g.appointments))
	for id := range g.appointments {
		pmIDs = append(pmIDs, id)
	}
	g.mu.Unlock()

	for _, pmID := range pmIDs {
		if err := g.DismissPM(ctx, pmID); err != nil {
			slog.Warn("failed to dismiss pm on shutdown", "pm", pmID, "error", err)
		}
	}

	g.bus.Unsubscribe(g.id)
	slog.Info("gm stopped", "agent", g.id)
}

// HandleUserTask is the external entry point: analyze, then appoint if
// feasible. Infeasible tasks are rejected with a reason, never dropped.
func (g *GM) HandleUserTask(ctx context.Context, task model.Task) (TaskOutcome, error) {
	analysis := g.AnalyzeTask(task)
	if !analysis.CanDo {
		return TaskOutcome{Accepted: false, Reason: analysis.Reason}, nil
	}

	pmID, err := g.AppointPM(ctx, task, analysis)
	if err != nil {
		return TaskOutcome{}, err
	}
	return TaskOutcome{Accepted: true, PMID: pmID}, nil
}

// AppointPM selects or creates a PM for the task's domain, records the
// appointment and sends the assignment. A failed send rolls the
// appointment back: an appointment never exists without its assignment
// having been sent.
func (g *GM) AppointPM(ctx context.Context, task model.Task, analysis model.Analysis) (string, error) {
	domain := mapTypeToDomain(analysis.Type)

	pmInst, err := g.findOrCreatePM(ctx, domain)
	if err != nil {
		return "", err
	}

	appointment := &Appointment{
		PMID:   pmInst.ID,
		PMType: pmInst.Config.Role,
		Domain: domain,
		TaskID: task.ID,
		Grant: model.ResourceGrant{
			LLM:       authorizeLLMs(analysis),
			Tools:     authorizeTools(analysis),
			Knowledge: authorizeKnowledge(analysis),
			Skills:    analysis.RequiredSkills,
			Budget: model.Budget{
				MaxTokens: g.cfg.BaseTokenBudget * budgetMultiplier[analysis.Complexity],
				MaxTimeMs: int64(analysis.EstimatedHours) * 60 * 60 * 1000,
			},
		},
	}

	g.mu.Lock()
	g.appointments[pmInst.ID] = appointment
	g.mu.Unlock()

	err = g.bus.Send(ctx, model.AgentMessage{
		ID:   uuid.NewString(),
		From: g.id,
		To:   pmInst.ID,
		Type: model.MsgTaskAssign,
		Payload: model.Payload(model.TaskAssignment{
			Task:          &task,
			Analysis:      &analysis,
			Authorization: &appointment.Grant,
		}),
		Priority:    model.Priority(task.Priority),
		RequiresAck: true,
	})
	if err != nil {
		g.mu.Lock()
		delete(g.appointments, pmInst.ID)
		g.mu.Unlock()
		return "", fmt.Errorf("send task to pm %s: %w", pmInst.ID, err)
	}

	slog.Info("pm appointed", "pm", pmInst.ID, "domain", domain, "task", task.ID)
	return pmInst.ID, nil
}

// findOrCreatePM reuses the idle platform PM for platform work and
// creates a fresh project PM from the domain's template otherwise.
func (g *GM) findOrCreatePM(ctx context.Context, domain string) (*model.AgentInstance, error) {
	if domain == "platform" {
		for _, inst := range g.registry.ListInstances(registry.InstanceFilter{Status: model.AgentIdle}) {
			if inst.Config.Role == model.RolePlatformPM {
				found := inst
				return &found, nil
			}
		}
		return nil, fmt.Errorf("no idle platform pm available")
	}

	var pmTemplate *model.AgentTemplate
	for _, tpl := range g.registry.ListTemplates(registry.TemplateFilter{Category: domain}) {
		if tpl.Config.Role == model.RoleProjectPM {
			found := tpl
			pmTemplate = &found
			break
		}
	}
	if pmTemplate == nil {
		return nil, fmt.Errorf("no pm template found for domain %s", domain)
	}

	pmID, err := g.registry.CreateInstance(ctx, pmTemplate.ID, model.ConfigOverrides{
		CreatedBy: g.id,
	})
	if err != nil {
		return nil, fmt.Errorf("create pm instance for domain %s: %w", domain, err)
	}

	inst, ok := g.registry.GetInstance(pmID)
	if !ok {
		return nil, fmt.Errorf("pm instance %s vanished after creation", pmID)
	}
	return inst, nil
}

// ReviewResult is a hard quality gate, not a score. Missing artifacts,
// a failed status or insufficient test coverage each reject with one
// specific rework category; anything else approves.
func (g *GM) ReviewResult(result model.TaskResultPayload) ReviewDecision {
	output := result.Output

	if output == nil || len(output.Artifacts) == 0 {
		return ReviewDecision{
			Feedback:      "No output artifacts produced",
			RequireRework: []string{"output"},
		}
	}

	if output.Status == "failed" {
		feedback := output.Error
		if feedback == "" {
			feedback = "Task execution failed"
		}
		return ReviewDecision{
			Feedback:      feedback,
			RequireRework: []string{"execution"},
		}
	}

	// Zero coverage means the metric was not reported, not that the
	// tests cover nothing.
	if output.Metrics != nil && output.Metrics.TestCoverage > 0 && output.Metrics.TestCoverage < 0.8 {
		return ReviewDecision{
			Feedback:      fmt.Sprintf("Test coverage %.0f%% is below 80%% threshold", output.Metrics.TestCoverage*100),
			RequireRework: []string{"testing"},
		}
	}

	return ReviewDecision{Approved: true}
}

// DismissPM is a no-op without an active appointment. Project PMs are
// destroyed; the platform PM only receives the destroy notice. The
// appointment record is removed last.
func (g *GM) DismissPM(ctx context.Context, pmID string) error {
	g.mu.Lock()
	appointment, ok := g.appointments[pmID]
	g.mu.Unlock()
	if !ok {
		return nil
	}

	err := g.bus.Send(ctx, model.AgentMessage{
		ID:       uuid.NewString(),
		From:     g.id,
		To:       pmID,
		Type:     model.MsgMgmtDestroy,
		Payload:  model.Payload(model.DestroyNotice{Reason: "task_completed"}),
		Priority: model.PriorityNormal,
	})
	if err != nil {
		return fmt.Errorf("send destroy notice to %s: %w", pmID, err)
	}

	if appointment.PMType == model.RoleProjectPM {
		if err := g.registry.DestroyInstance(ctx, pmID); err != nil {
			return fmt.Errorf("destroy pm instance %s: %w", pmID, err)
		}
	}

	g.mu.Lock()
	delete(g.appointments, pmID)
	g.mu.Unlock()

	slog.Info("pm dismissed", "pm", pmID, "type", appointment.PMType)
	return nil
}

// ActiveAppointments snapshots the current appointment set.
func (g *GM) ActiveAppointments() []Appointment {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := make([]Appointment, 0, len(g.appointments))
	for _, a := range g.appointments {
		result = append(result, *a)
	}
	return result
}

// HandleMessage dispatches inbound bus traffic by type.
func (g *GM) HandleMessage(ctx context.Context, msg model.AgentMessage) error {
	switch msg.Type {
	case model.MsgTaskAssign:
		return g.handleTaskAssign(ctx, msg)
	case model.MsgTaskResult:
		return g.handleTaskResult(ctx, msg)
	case model.MsgTaskError:
		return g.handleTaskError(ctx, msg)
	case model.MsgNotifyCritical:
		return g.handleCriticalNotification(ctx, msg)
	default:
		slog.Debug("gm ignoring message", "type", msg.Type, "from", msg.From)
		return nil
	}
}

// handleTaskAssign accepts a user task relayed by the assistant.
func (g *GM) handleTaskAssign(ctx context.Context, msg model.AgentMessage) error {
	assignment, err := model.DecodePayload[model.TaskAssignment](msg)
	if err != nil {
		return fmt.Errorf("decode task assignment: %w", err)
	}
	if assignment.Task == nil {
		slog.Error("task assignment without task", "from", msg.From)
		return nil
	}

	outcome, err := g.HandleUserTask(ctx, *assignment.Task)
	if err != nil {
		return err
	}
	if !outcome.Accepted {
		return g.notifyAssistant(ctx, model.Notification{
			Kind:   model.NotifyTaskFailed,
			TaskID: assignment.Task.ID,
			Error:  outcome.Reason,
		})
	}
	return nil
}

func (g *GM) handleTaskResult(ctx context.Context, msg model.AgentMessage) error {
	result, err := model.DecodePayload[model.TaskResultPayload](msg)
	if err != nil {
		return fmt.Errorf("decode task result: %w", err)
	}
	if result.TaskID == "" || result.PMID == "" {
		slog.Error("task result missing task or pm id", "from", msg.From)
		return nil
	}

	decision := g.ReviewResult(result)

	if decision.Approved {
		g.mu.Lock()
		delete(g.reworkRounds, result.TaskID)
		g.mu.Unlock()

		// Completion notice and PM dismissal are independent: failure
		// of one must not suppress the other.
		if err := g.notifyAssistant(ctx, model.Notification{
			Kind:   model.NotifyTaskCompleted,
			TaskID: result.TaskID,
			Result: result.Output,
		}); err != nil {
			slog.Error("failed to notify assistant of completion", "task", result.TaskID, "error", err)
		}
		if err := g.DismissPM(ctx, result.PMID); err != nil {
			slog.Error("failed to dismiss pm after approval", "pm", result.PMID, "error", err)
		}
		return nil
	}

	g.mu.Lock()
	g.reworkRounds[result.TaskID]++
	rounds := g.reworkRounds[result.TaskID]
	g.mu.Unlock()

	if g.cfg.MaxReworkRounds > 0 && rounds > g.cfg.MaxReworkRounds {
		slog.Warn("rework limit reached, abandoning task",
			"task", result.TaskID, "rounds", rounds)
		g.mu.Lock()
		delete(g.reworkRounds, result.TaskID)
		g.mu.Unlock()

		if err := g.notifyAssistant(ctx, model.Notification{
			Kind:   model.NotifyTaskFailed,
			TaskID: result.TaskID,
			Error:  fmt.Sprintf("abandoned after %d rework rounds: %s", rounds-1, decision.Feedback),
		}); err != nil {
			slog.Error("failed to notify assistant of abandonment", "task", result.TaskID, "error", err)
		}
		return g.DismissPM(ctx, result.PMID)
	}

	err = g.bus.Send(ctx, model.AgentMessage{
		ID:   uuid.NewString(),
		From: g.id,
		To:   result.PMID,
		Type: model.MsgTaskAssign,
		Payload: model.Payload(model.TaskAssignment{
			TaskID:        result.TaskID,
			Feedback:      decision.Feedback,
			RequireRework: decision.RequireRework,
		}),
		Priority:    model.PriorityHigh,
		RequiresAck: true,
	})
	if err != nil {
		slog.Error("failed to send rework request", "pm", result.PMID, "error", err)
	}
	return nil
}

func (g *GM) handleTaskError(ctx context.Context, msg model.AgentMessage) error {
	failure, err := model.DecodePayload[model.TaskErrorPayload](msg)
	if err != nil {
		return fmt.Errorf("decode task error: %w", err)
	}

	if err := g.notifyAssistant(ctx, model.Notification{
		Kind:   model.NotifyTaskFailed,
		TaskID: failure.TaskID,
		Error:  failure.Error,
	}); err != nil {
		slog.Error("failed to notify assistant of failure", "task", failure.TaskID, "error", err)
	}

	return g.DismissPM(ctx, failure.PMID)
}

// Critical notifications are relayed to the assistant unchanged.
func (g *GM) handleCriticalNotification(ctx context.Context, msg model.AgentMessage) error {
	relay, err := model.DecodePayload[model.Notification](msg)
	if err != nil {
		return fmt.Errorf("decode critical notification: %w", err)
	}
	relay.Kind = model.NotifyCriticalRelay
	relay.From = msg.From
	return g.notifyAssistant(ctx, relay)
}

func (g *GM) notifyAssistant(ctx context.Context, n model.Notification) error {
	var lastErr error
	for _, inst := range g.registry.ListInstances(registry.InstanceFilter{}) {
		if inst.Config.Role != model.RoleAssistant {
			continue
		}
		err := g.bus.Send(ctx, model.AgentMessage{
			ID:       uuid.NewString(),
			From:     g.id,
			To:       inst.ID,
			Type:     model.MsgNotifyInfo,
			Payload:  model.Payload(n),
			Priority: model.PriorityNormal,
		})
		if err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func mapTypeToDomain(taskType model.TaskType) string {
	switch taskType {
	case model.TaskCoding, model.TaskDeployment:
		return "coding"
	case model.TaskWriting:
		return "writing"
	case model.TaskResearch, model.TaskAnalysis:
		return "research"
	case model.TaskReview:
		return "review"
	default:
		return "platform"
	}
}

func authorizeLLMs(analysis model.Analysis) []string {
	if analysis.Type == model.TaskCoding {
		return []string{"gpt-codex", "claude-sonnet"}
	}
	return []string{"claude-sonnet", "glm-5"}
}

var knownTools = map[string]bool{
	"shell": true, "file": true, "browser": true, "database": true, "http": true,
}

// Tool allow-list is the intersection of required resources with the
// known tool set; "llm" is a resource, not a tool.
func authorizeTools(analysis model.Analysis) []string {
	var tools []string
	for _, r := range analysis.RequiredResources {
		if knownTools[r] {
			tools = append(tools, r)
		}
	}
	return tools
}

var knowledgeByType = map[model.TaskType][]string{
	model.TaskCoding:   {"coding-patterns", "api-docs"},
	model.TaskWriting:  {"style-guide"},
	model.TaskResearch: {"web-search"},
}

func authorizeKnowledge(analysis model.Analysis) []string {
	if k, ok := knowledgeByType[analysis.Type]; ok {
		return k
	}
	return []string{}
}
