package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mtzanidakis/agency/internal/config"
	"github.com/mtzanidakis/agency/internal/model"
	"github.com/mtzanidakis/agency/internal/node"
	"github.com/mtzanidakis/agency/internal/store"
)

// countingAdapter records register/unregister calls and can be told to
// fail registration.
type countingAdapter struct {
	mu          sync.Mutex
	registers   int
	unregisters int
	failNext    bool
	lastHandle  node.Handle
}

func (a *countingAdapter) RegisterNode(ctx context.Context, agentID string, meta node.Metadata) (node.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failNext {
		a.failNext = false
		return node.Handle{}, errors.New("node backend unavailable")
	}
	a.registers++
	a.lastHandle = node.Handle{NodeID: fmt.Sprintf("node-%d", a.registers), AgentID: agentID}
	return a.lastHandle, nil
}

func (a *countingAdapter) UnregisterNode(ctx context.Context, h node.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unregisters++
	return nil
}

func (a *countingAdapter) SendViaTunnel(ctx context.Context, from, to string, msg model.AgentMessage) error {
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *countingAdapter) {
	t.Helper()
	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "agency.db")})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	adapter := &countingAdapter{}
	r := New(st, adapter)
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return r, adapter
}

func TestInitializeLoadsBuiltins(t *testing.T) {
	r, _ := newTestRegistry(t)

	for _, id := range []string{"template-gm", "template-assistant", "template-platform-pm", "template-dev-pm"} {
		if _, ok := r.GetTemplate(id); !ok {
			t.Errorf("expected builtin template %s", id)
		}
	}

	workers := r.ListTemplates(TemplateFilter{Category: "worker"})
	if len(workers) != 4 {
		t.Errorf("expected 4 builtin workers, got %d", len(workers))
	}
}

func TestInitializeIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)

	before := len(r.ListTemplates(TemplateFilter{}))
	if err := r.Initialize(); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	after := len(r.ListTemplates(TemplateFilter{}))
	if before != after {
		t.Errorf("template count changed across Initialize: %d vs %d", before, after)
	}
}

func TestRegisterTemplateAssignsIdentity(t *testing.T) {
	r, _ := newTestRegistry(t)

	id, err := r.RegisterTemplate(model.AgentTemplate{
		Name:     "Custom Worker",
		Category: "worker",
		Rating:   3.5,
		Tags:     []string{"worker", "custom"},
	})
	if err != nil {
		t.Fatalf("RegisterTemplate: %v", err)
	}

	tpl, ok := r.GetTemplate(id)
	if !ok {
		t.Fatal("expected registered template")
	}
	if tpl.CreatedAt.IsZero() || tpl.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestListTemplatesSortedByRating(t *testing.T) {
	r, _ := newTestRegistry(t)

	templates := r.ListTemplates(TemplateFilter{Category: "worker"})
	for i := 1; i < len(templates); i++ {
		if templates[i-1].Rating < templates[i].Rating {
			t.Errorf("templates not sorted by descending rating: %f before %f",
				templates[i-1].Rating, templates[i].Rating)
		}
	}
}

func TestSearchTemplates(t *testing.T) {
	r, _ := newTestRegistry(t)

	results := r.SearchTemplates("FRONTEND")
	if len(results) == 0 {
		t.Fatal("expected case-insensitive match on frontend")
	}
	for _, tpl := range results {
		if tpl.ID == "template-frontend-worker" {
			return
		}
	}
	t.Error("expected frontend worker in search results")
}

func TestUpdateTemplate(t *testing.T) {
	r, _ := newTestRegistry(t)

	rating := 2.0
	if err := r.UpdateTemplate("template-test-worker", TemplateUpdate{Rating: &rating}); err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}

	tpl, _ := r.GetTemplate("template-test-worker")
	if tpl.Rating != 2.0 {
		t.Errorf("expected updated rating, got %f", tpl.Rating)
	}

	err := r.UpdateTemplate("missing", TemplateUpdate{Rating: &rating})
	var nf NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestCreateInstanceMergesOverrides(t *testing.T) {
	r, _ := newTestRegistry(t)

	id, err := r.CreateInstance(context.Background(), "template-backend-worker", model.ConfigOverrides{
		TeamID:    "team-1",
		ParentPM:  "pm-1",
		CreatedBy: "gm",
		LLM:       &model.LLMConfig{Model: "custom-model"},
	})
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	inst, ok := r.GetInstance(id)
	if !ok {
		t.Fatal("expected instance")
	}
	if inst.Config.LLM.Model != "custom-model" {
		t.Errorf("expected override model, got %s", inst.Config.LLM.Model)
	}
	if inst.Config.TeamID != "team-1" || inst.Config.ParentPM != "pm-1" {
		t.Errorf("expected team/parent overrides, got %+v", inst.Config)
	}
	if len(inst.Config.Tools) == 0 {
		t.Error("expected template tools to be kept when not overridden")
	}
	if inst.Status != model.AgentIdle {
		t.Errorf("expected idle status, got %s", inst.Status)
	}
	if inst.NodeID == "" {
		t.Error("expected node handle on instance")
	}
}

func TestCreateInstanceMissingTemplate(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.CreateInstance(context.Background(), "missing", model.ConfigOverrides{})
	var nf NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestCreateInstanceNodeRegistrationGate(t *testing.T) {
	r, adapter := newTestRegistry(t)
	adapter.failNext = true

	_, err := r.CreateInstance(context.Background(), "template-backend-worker", model.ConfigOverrides{})
	if err == nil {
		t.Fatal("expected error when node registration fails")
	}

	if instances := r.ListInstances(InstanceFilter{}); len(instances) != 0 {
		t.Errorf("expected no retained instance after failed registration, got %d", len(instances))
	}
}

func TestDestroyInstanceUnregistersOnce(t *testing.T) {
	r, adapter := newTestRegistry(t)

	id, err := r.CreateInstance(context.Background(), "template-backend-worker", model.ConfigOverrides{})
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	if err := r.DestroyInstance(context.Background(), id); err != nil {
		t.Fatalf("DestroyInstance: %v", err)
	}
	if _, ok := r.GetInstance(id); ok {
		t.Error("expected instance to be gone")
	}
	if adapter.unregisters != 1 {
		t.Errorf("expected exactly one unregister, got %d", adapter.unregisters)
	}

	// Idempotent: second destroy is a no-op.
	if err := r.DestroyInstance(context.Background(), id); err != nil {
		t.Fatalf("second DestroyInstance: %v", err)
	}
	if adapter.unregisters != 1 {
		t.Errorf("expected unregister count unchanged, got %d", adapter.unregisters)
	}
}

func TestUpdateInstanceStatusRefreshesLastActive(t *testing.T) {
	r, _ := newTestRegistry(t)

	id, _ := r.CreateInstance(context.Background(), "template-test-worker", model.ConfigOverrides{})
	inst, _ := r.GetInstance(id)
	before := inst.LastActiveAt

	if err := r.UpdateInstanceStatus(id, model.AgentBusy); err != nil {
		t.Fatalf("UpdateInstanceStatus: %v", err)
	}

	inst, _ = r.GetInstance(id)
	if inst.Status != model.AgentBusy {
		t.Errorf("expected busy status, got %s", inst.Status)
	}
	if inst.LastActiveAt.Before(before) {
		t.Error("expected LastActiveAt to be refreshed")
	}

	err := r.UpdateInstanceStatus("missing", model.AgentBusy)
	var nf NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestListInstancesFilter(t *testing.T) {
	r, _ := newTestRegistry(t)

	a, _ := r.CreateInstance(context.Background(), "template-test-worker", model.ConfigOverrides{TeamID: "team-a"})
	b, _ := r.CreateInstance(context.Background(), "template-test-worker", model.ConfigOverrides{TeamID: "team-b"})
	_ = r.UpdateInstanceStatus(b, model.AgentBusy)

	teamA := r.ListInstances(InstanceFilter{TeamID: "team-a"})
	if len(teamA) != 1 || teamA[0].ID != a {
		t.Errorf("expected only %s in team-a, got %+v", a, teamA)
	}

	busy := r.ListInstances(InstanceFilter{Status: model.AgentBusy})
	if len(busy) != 1 || busy[0].ID != b {
		t.Errorf("expected only %s busy, got %+v", b, busy)
	}
}

func TestMembersResolvesTeam(t *testing.T) {
	r, _ := newTestRegistry(t)

	a, _ := r.CreateInstance(context.Background(), "template-test-worker", model.ConfigOverrides{TeamID: "team-a"})
	b, _ := r.CreateInstance(context.Background(), "template-backend-worker", model.ConfigOverrides{TeamID: "team-a"})
	_, _ = r.CreateInstance(context.Background(), "template-test-worker", model.ConfigOverrides{TeamID: "team-b"})

	members, ok := r.Members("team-a")
	if !ok {
		t.Fatal("expected team-a to resolve")
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	seen := map[string]bool{}
	for _, id := range members {
		seen[id] = true
	}
	if !seen[a] || !seen[b] {
		t.Errorf("expected members %s and %s, got %v", a, b, members)
	}

	if _, ok := r.Members("team-unknown"); ok {
		t.Error("expected unknown team to report false")
	}
}

func TestMatchWorker(t *testing.T) {
	r, _ := newTestRegistry(t)

	matches := r.MatchWorker(WorkerRequirements{Skills: []string{"python"}})
	if len(matches) == 0 {
		t.Fatal("expected python-tagged worker match")
	}
	for _, tpl := range matches {
		if tpl.Category != "worker" {
			t.Errorf("expected worker category only, got %s", tpl.Category)
		}
	}

	excluded := r.MatchWorker(WorkerRequirements{
		Skills:     []string{"python"},
		ExcludeIDs: []string{"template-backend-worker"},
	})
	for _, tpl := range excluded {
		if tpl.ID == "template-backend-worker" {
			t.Error("expected backend worker to be excluded")
		}
	}

	none := r.MatchWorker(WorkerRequirements{Skills: []string{"quantum-basket-weaving"}})
	if len(none) != 0 {
		t.Errorf("expected no match, got %+v", none)
	}
}

func TestInstancesSurviveRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "agency.db")
	st, err := store.New(config.StoreConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	adapter := &countingAdapter{}
	r := New(st, adapter)
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	id, err := r.CreateInstance(context.Background(), "template-test-worker", model.ConfigOverrides{})
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	st.Close()

	st2, err := store.New(config.StoreConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("store.New reopen: %v", err)
	}
	defer st2.Close()

	r2 := New(st2, adapter)
	if err := r2.Initialize(); err != nil {
		t.Fatalf("Initialize after restart: %v", err)
	}
	if _, ok := r2.GetInstance(id); !ok {
		t.Error("expected instance to survive restart")
	}
}
