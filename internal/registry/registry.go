// Package registry owns the agent template catalog and the live
// instance set. All instance creation and destruction goes through it,
// so an instance never exists without a node handle from the adapter.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtzanidakis/agency/internal/model"
	"github.com/mtzanidakis/agency/internal/node"
	"github.com/mtzanidakis/agency/internal/store"
)

// NotFoundError reports a missing template or instance.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// TemplateFilter narrows ListTemplates results. Zero values match all.
type TemplateFilter struct {
	Category  string
	Tags      []string
	MinRating float64
}

// InstanceFilter narrows ListInstances results. Zero values match all.
type InstanceFilter struct {
	Status model.AgentStatus
	TeamID string
}

// WorkerRequirements drive MatchWorker.
type WorkerRequirements struct {
	Skills     []string
	MinRating  float64
	ExcludeIDs []string
}

type Registry struct {
	store   *store.Store
	adapter node.Adapter

	mu        sync.RWMutex
	templates map[string]*model.AgentTemplate
	instances map[string]*model.AgentInstance
}

func New(st *store.Store, adapter node.Adapter) *Registry {
	return &Registry{
		store:     st,
		adapter:   adapter,
		templates: make(map[string]*model.AgentTemplate),
		instances: make(map[string]*model.AgentInstance),
	}
}

// Initialize loads the built-in template catalog, then anything
// persisted by a previous run. Idempotent: built-ins keep fixed ids and
// persisted records simply overwrite them.
func (r *Registry) Initialize() error {
	for _, tpl := range builtinTemplates() {
		if err := r.putTemplate(tpl); err != nil {
			return fmt.Errorf("load builtin template %s: %w", tpl.ID, err)
		}
	}

	templates, err := r.store.ListTemplates()
	if err != nil {
		return fmt.Errorf("load persisted templates: %w", err)
	}
	r.mu.Lock()
	for i := range templates {
		t := templates[i]
		r.templates[t.ID] = &t
	}
	r.mu.Unlock()

	instances, err := r.store.ListInstances()
	if err != nil {
		return fmt.Errorf("load persisted instances: %w", err)
	}
	r.mu.Lock()
	for i := range instances {
		inst := instances[i]
		r.instances[inst.ID] = &inst
	}
	r.mu.Unlock()

	slog.Info("registry initialized",
		"templates", len(r.templates), "instances", len(r.instances))
	return nil
}

func (r *Registry) putTemplate(tpl *model.AgentTemplate) error {
	r.mu.Lock()
	r.templates[tpl.ID] = tpl
	r.mu.Unlock()
	return r.store.SaveTemplate(tpl)
}

// RegisterTemplate assigns identity and timestamps, stores and persists.
func (r *Registry) RegisterTemplate(tpl model.AgentTemplate) (string, error) {
	tpl.ID = "template-" + uuid.NewString()
	now := time.Now()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	if err := r.putTemplate(&tpl); err != nil {
		return "", fmt.Errorf("register template: %w", err)
	}
	return tpl.ID, nil
}

func (r *Registry) GetTemplate(id string) (*model.AgentTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[id]
	return tpl, ok
}

// ListTemplates returns matching templates sorted by descending rating.
func (r *Registry) ListTemplates(filter TemplateFilter) []model.AgentTemplate {
	r.mu.RLock()
	var results []model.AgentTemplate
	for _, tpl := range r.templates {
		if filter.Category != "" && tpl.Category != filter.Category {
			continue
		}
		if filter.MinRating > 0 && tpl.Rating < filter.MinRating {
			continue
		}
		if len(filter.Tags) > 0 && !anyTagMatch(tpl.Tags, filter.Tags) {
			continue
		}
		results = append(results, *tpl)
	}
	r.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Rating > results[j].Rating
	})
	return results
}

// SearchTemplates matches name, description and tag substrings
// case-insensitively, sorted by descending rating.
func (r *Registry) SearchTemplates(query string) []model.AgentTemplate {
	q := strings.ToLower(query)

	r.mu.RLock()
	var results []model.AgentTemplate
	for _, tpl := range r.templates {
		if strings.Contains(strings.ToLower(tpl.Name), q) ||
			strings.Contains(strings.ToLower(tpl.Description), q) ||
			tagContains(tpl.Tags, q) {
			results = append(results, *tpl)
		}
	}
	r.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Rating > results[j].Rating
	})
	return results
}

// TemplateUpdate holds the mutable template fields. Nil pointers keep
// the current value.
type TemplateUpdate struct {
	Name        *string
	Description *string
	Config      *model.AgentConfig
	Rating      *float64
	Tags        []string
	Version     *string
}

func (r *Registry) UpdateTemplate(id string, upd TemplateUpdate) error {
	r.mu.Lock()
	tpl, ok := r.templates[id]
	if !ok {
		r.mu.Unlock()
		return NotFoundError{Kind: "template", ID: id}
	}

	if upd.Name != nil {
		tpl.Name = *upd.Name
	}
	if upd.Description != nil {
		tpl.Description = *upd.Description
	}
	if upd.Config != nil {
		tpl.Config = *upd.Config
	}
	if upd.Rating != nil {
		tpl.Rating = *upd.Rating
	}
	if upd.Tags != nil {
		tpl.Tags = upd.Tags
	}
	if upd.Version != nil {
		tpl.Version = *upd.Version
	}
	tpl.UpdatedAt = time.Now()
	snapshot := *tpl
	r.mu.Unlock()

	return r.store.SaveTemplate(&snapshot)
}

// CreateInstance builds a live agent from a template. The node
// registration gate runs before the instance is retained: a failed
// registration aborts creation with nothing left behind. Persistence
// failure after that point is logged, not fatal.
func (r *Registry) CreateInstance(ctx context.Context, templateID string, overrides model.ConfigOverrides) (string, error) {
	r.mu.RLock()
	tpl, ok := r.templates[templateID]
	r.mu.RUnlock()
	if !ok {
		return "", NotFoundError{Kind: "template", ID: templateID}
	}

	instanceID := "agent-" + uuid.NewString()
	cfg := mergeConfig(tpl, overrides)

	return r.provision(ctx, instanceID, templateID, cfg)
}

// CreateDirectInstance creates an instance from a fully resolved config
// without a template.
func (r *Registry) CreateDirectInstance(ctx context.Context, cfg model.AgentConfig) (string, error) {
	instanceID := "agent-" + uuid.NewString()
	if cfg.ID == "" {
		cfg.ID = "config-" + uuid.NewString()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	return r.provision(ctx, instanceID, "", cfg)
}

func (r *Registry) provision(ctx context.Context, instanceID, templateID string, cfg model.AgentConfig) (string, error) {
	handle, err := r.adapter.RegisterNode(ctx, instanceID, node.Metadata{
		Role:       cfg.Role,
		TemplateID: templateID,
		TeamID:     cfg.TeamID,
	})
	if err != nil {
		return "", fmt.Errorf("register node for %s: %w", instanceID, err)
	}

	now := time.Now()
	inst := &model.AgentInstance{
		ID:           instanceID,
		TemplateID:   templateID,
		Config:       cfg,
		Status:       model.AgentIdle,
		NodeID:       handle.NodeID,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	r.mu.Lock()
	r.instances[instanceID] = inst
	r.mu.Unlock()

	// In-memory instance is authoritative; a persistence failure costs
	// durability, not availability.
	if err := r.store.SaveInstance(inst); err != nil {
		slog.Error("failed to persist instance", "instance", instanceID, "error", err)
	}

	slog.Info("instance created", "instance", instanceID, "template", templateID, "role", cfg.Role)
	return instanceID, nil
}

func (r *Registry) GetInstance(id string) (*model.AgentInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

func (r *Registry) ListInstances(filter InstanceFilter) []model.AgentInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []model.AgentInstance
	for _, inst := range r.instances {
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		if filter.TeamID != "" && inst.Config.TeamID != filter.TeamID {
			continue
		}
		results = append(results, *inst)
	}
	return results
}

// Members returns the instance ids belonging to a team. It satisfies
// the bus team resolver; an empty team reports false so the bus can
// fall back to a broadcast.
func (r *Registry) Members(teamID string) ([]string, bool) {
	instances := r.ListInstances(InstanceFilter{TeamID: teamID})
	if len(instances) == 0 {
		return nil, false
	}
	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}
	return ids, true
}

// UpdateInstanceStatus always refreshes LastActiveAt.
func (r *Registry) UpdateInstanceStatus(id string, status model.AgentStatus) error {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return NotFoundError{Kind: "instance", ID: id}
	}
	inst.Status = status
	inst.LastActiveAt = time.Now()
	snapshot := *inst
	r.mu.Unlock()

	if err := r.store.SaveInstance(&snapshot); err != nil {
		slog.Error("failed to persist instance status", "instance", id, "error", err)
	}
	return nil
}

// SetActiveTask records the task an instance is working on. Empty
// taskID clears it.
func (r *Registry) SetActiveTask(id, taskID string) error {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return NotFoundError{Kind: "instance", ID: id}
	}
	inst.ActiveTaskID = taskID
	inst.LastActiveAt = time.Now()
	snapshot := *inst
	r.mu.Unlock()

	if err := r.store.SaveInstance(&snapshot); err != nil {
		slog.Error("failed to persist instance task", "instance", id, "error", err)
	}
	return nil
}

// RecordTaskOutcome updates an instance's running metrics after a task
// finishes.
func (r *Registry) RecordTaskOutcome(id string, completed bool, duration time.Duration, tokensUsed int64) error {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return NotFoundError{Kind: "instance", ID: id}
	}

	m := &inst.Metrics
	m.TotalTasks++
	if completed {
		m.CompletedTasks++
	} else {
		m.FailedTasks++
	}
	m.TotalTokensUsed += tokensUsed
	// Running average over all finished tasks.
	m.AvgCompletionTime += (duration.Seconds() - m.AvgCompletionTime) / float64(m.TotalTasks)
	inst.LastActiveAt = time.Now()
	snapshot := *inst
	r.mu.Unlock()

	if err := r.store.SaveInstance(&snapshot); err != nil {
		slog.Error("failed to persist instance metrics", "instance", id, "error", err)
	}
	return nil
}

// DestroyInstance is idempotent: missing ids are a no-op. Otherwise the
// node handle is released exactly once, then the instance and its
// persisted record are removed.
func (r *Registry) DestroyInstance(ctx context.Context, id string) error {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.instances, id)
	r.mu.Unlock()

	if inst.NodeID != "" {
		if err := r.adapter.UnregisterNode(ctx, node.Handle{NodeID: inst.NodeID, AgentID: id}); err != nil {
			return fmt.Errorf("unregister node for %s: %w", id, err)
		}
	}

	if err := r.store.DeleteInstance(id); err != nil {
		slog.Error("failed to delete persisted instance", "instance", id, "error", err)
	}

	slog.Info("instance destroyed", "instance", id)
	return nil
}

// MatchWorker returns worker-category templates whose tags or declared
// skills intersect the requested skills, minus exclusions.
func (r *Registry) MatchWorker(req WorkerRequirements) []model.AgentTemplate {
	candidates := r.ListTemplates(TemplateFilter{
		Category:  "worker",
		MinRating: req.MinRating,
	})

	if len(req.Skills) > 0 {
		var matched []model.AgentTemplate
		for _, tpl := range candidates {
			if templateHasSkill(tpl, req.Skills) {
				matched = append(matched, tpl)
			}
		}
		candidates = matched
	}

	if len(req.ExcludeIDs) > 0 {
		excluded := make(map[string]bool, len(req.ExcludeIDs))
		for _, id := range req.ExcludeIDs {
			excluded[id] = true
		}
		var kept []model.AgentTemplate
		for _, tpl := range candidates {
			if !excluded[tpl.ID] {
				kept = append(kept, tpl)
			}
		}
		candidates = kept
	}

	return candidates
}

// mergeConfig resolves a template's config defaults with caller
// overrides; set override fields win.
func mergeConfig(tpl *model.AgentTemplate, o model.ConfigOverrides) model.AgentConfig {
	cfg := tpl.Config
	cfg.ID = "config-" + uuid.NewString()
	if cfg.Name == "" {
		cfg.Name = tpl.Name
	}
	if cfg.Role == "" {
		cfg.Role = model.RoleWorker
	}
	if cfg.Tier == "" {
		cfg.Tier = model.TierWorker
	}
	cfg.TeamID = o.TeamID
	cfg.ParentPM = o.ParentPM

	if o.LLM != nil {
		cfg.LLM = *o.LLM
	}
	if o.Tools != nil {
		cfg.Tools = o.Tools
	}
	if o.Skills != nil {
		cfg.Skills = o.Skills
	}
	if o.Knowledge != nil {
		cfg.Knowledge = o.Knowledge
	}
	if o.Limits != nil {
		cfg.Limits = *o.Limits
	}

	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	cfg.CreatedAt = time.Now()
	cfg.CreatedBy = o.CreatedBy
	if cfg.CreatedBy == "" {
		cfg.CreatedBy = "system"
	}
	return cfg
}

func templateHasSkill(tpl model.AgentTemplate, skills []string) bool {
	for _, want := range skills {
		for _, tag := range tpl.Tags {
			if tag == want {
				return true
			}
		}
		for _, s := range tpl.Config.Skills {
			if s.Name == want || s.ID == want {
				return true
			}
		}
	}
	return false
}

func anyTagMatch(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func tagContains(tags []string, q string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
