package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mtzanidakis/agency/internal/assistant"
	"github.com/mtzanidakis/agency/internal/bus"
	"github.com/mtzanidakis/agency/internal/config"
	"github.com/mtzanidakis/agency/internal/gm"
	"github.com/mtzanidakis/agency/internal/model"
	"github.com/mtzanidakis/agency/internal/node"
	"github.com/mtzanidakis/agency/internal/registry"
	"github.com/mtzanidakis/agency/internal/store"
	"github.com/mtzanidakis/agency/internal/vault"
)

func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()

	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	b := bus.New(bus.WithArchive(st))
	reg := registry.New(st, node.NewLoopback(b))
	if err := reg.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	g := gm.New("gm-1", config.GMConfig{BaseTokenBudget: 1_000_000, MaxReworkRounds: 3}, reg, b)
	g.Start()
	t.Cleanup(func() { g.Stop(t.Context()) })

	a := assistant.New("assistant-1", "gm-1", b)
	a.SetTaskStore(st)
	a.Start()
	t.Cleanup(a.Stop)

	v := vault.New("test-passphrase", st)

	srv := NewServer(st, b, nil, reg, g, a, v, config.WebConfig{Port: 0}, "test")

	mux := http.NewServeMux()
	srv.registerAPI(mux)
	return srv, mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Body.String(), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestListTemplates(t *testing.T) {
	_, mux := newTestServer(t)

	rec, _ := doJSON(t, mux, "GET", "/api/templates", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var templates []model.AgentTemplate
	if err := json.Unmarshal(rec.Body.Bytes(), &templates); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(templates) == 0 {
		t.Fatal("no builtin templates listed")
	}
}

func TestListTemplatesCategoryFilter(t *testing.T) {
	_, mux := newTestServer(t)

	rec, _ := doJSON(t, mux, "GET", "/api/templates?category=coding", "")
	var templates []model.AgentTemplate
	if err := json.Unmarshal(rec.Body.Bytes(), &templates); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, tpl := range templates {
		if tpl.Category != "coding" {
			t.Errorf("template %s has category %s", tpl.ID, tpl.Category)
		}
	}
}

func TestGetTemplateNotFound(t *testing.T) {
	_, mux := newTestServer(t)

	rec, body := doJSON(t, mux, "GET", "/api/templates/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body["error"] == nil {
		t.Error("missing error message")
	}
}

func TestUpdateTemplateNotFound(t *testing.T) {
	_, mux := newTestServer(t)

	rec, _ := doJSON(t, mux, "PUT", "/api/templates/ghost", `{"version":"2.0.0"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateAndDestroyInstance(t *testing.T) {
	_, mux := newTestServer(t)

	rec, body := doJSON(t, mux, "POST", "/api/instances", `{"template_id":"template-backend-worker"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("no instance id returned")
	}

	rec, _ = doJSON(t, mux, "GET", "/api/instances/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec, _ = doJSON(t, mux, "DELETE", "/api/instances/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("destroy status = %d", rec.Code)
	}

	rec, _ = doJSON(t, mux, "GET", "/api/instances/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after destroy status = %d, want 404", rec.Code)
	}
}

func TestCreateInstanceUnknownTemplate(t *testing.T) {
	_, mux := newTestServer(t)

	rec, _ := doJSON(t, mux, "POST", "/api/instances", `{"template_id":"ghost"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSubmitTaskThroughAssistant(t *testing.T) {
	_, mux := newTestServer(t)

	rec, body := doJSON(t, mux, "POST", "/api/tasks", `{"text":"帮我开发一个 API"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if body["task_id"] == "" {
		t.Error("no task id in response")
	}
	if body["type"] != "ack" {
		t.Errorf("response type = %v, want ack", body["type"])
	}

	// The GM should have appointed a PM for the submitted task.
	rec, _ = doJSON(t, mux, "GET", "/api/appointments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("appointments status = %d", rec.Code)
	}
	var appointments []gm.Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &appointments); err != nil {
		t.Fatalf("decode appointments: %v", err)
	}
	if len(appointments) != 1 {
		t.Fatalf("appointments = %d, want 1", len(appointments))
	}

	// The submitted task is persisted and visible through the API.
	rec, _ = doJSON(t, mux, "GET", "/api/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("tasks status = %d", rec.Code)
	}
	var tasks []model.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Type != model.TaskCoding {
		t.Fatalf("expected one persisted coding task, got %+v", tasks)
	}

	// Bus traffic from the round trip lands in the message archive.
	rec, _ = doJSON(t, mux, "GET", "/api/messages?agent=assistant-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("messages status = %d", rec.Code)
	}
	var archived []store.ArchivedMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &archived); err != nil {
		t.Fatalf("decode archive: %v", err)
	}
	if len(archived) == 0 {
		t.Fatal("expected archived messages for assistant-1")
	}
}

func TestSubmitTaskRequiresText(t *testing.T) {
	_, mux := newTestServer(t)

	rec, _ := doJSON(t, mux, "POST", "/api/tasks", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSecretsRoundTrip(t *testing.T) {
	_, mux := newTestServer(t)

	rec, _ := doJSON(t, mux, "POST", "/api/secrets", `{"id":"cred-1","name":"api key","value":"hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d", rec.Code)
	}

	rec, _ = doJSON(t, mux, "GET", "/api/secrets", "")
	var secrets []map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &secrets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(secrets) != 1 || secrets[0]["name"] != "api key" {
		t.Fatalf("unexpected secrets: %v", secrets)
	}
	// Values never appear in listings.
	if _, ok := secrets[0]["value"]; ok {
		t.Error("secret value leaked in listing")
	}

	rec, _ = doJSON(t, mux, "DELETE", "/api/secrets/cred-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	rec, body := doJSON(t, mux, "GET", "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v", body["version"])
	}
	if _, ok := body["bus"]; !ok {
		t.Error("missing bus stats")
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, mux := newTestServer(t)
	srv.cfg.Auth = "letmein"
	handler := srv.withMiddleware(mux)

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.SetBasicAuth("any", "letmein")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("basic auth status = %d, want 200", rec.Code)
	}
}
