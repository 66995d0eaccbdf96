package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mtzanidakis/agency/internal/assistant"
	"github.com/mtzanidakis/agency/internal/bus"
	"github.com/mtzanidakis/agency/internal/model"
	"github.com/mtzanidakis/agency/internal/registry"
	"github.com/mtzanidakis/agency/internal/schedule"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Agent templates
	mux.HandleFunc("GET /api/templates", s.listTemplates)
	mux.HandleFunc("POST /api/templates", s.createTemplate)
	mux.HandleFunc("GET /api/templates/search", s.searchTemplates)
	mux.HandleFunc("GET /api/templates/{id}", s.getTemplate)
	mux.HandleFunc("PUT /api/templates/{id}", s.updateTemplate)

	// Agent instances
	mux.HandleFunc("GET /api/instances", s.listInstances)
	mux.HandleFunc("GET /api/instances/{id}", s.getInstance)
	mux.HandleFunc("POST /api/instances", s.createInstance)
	mux.HandleFunc("DELETE /api/instances/{id}", s.destroyInstance)

	// Tasks and appointments
	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("POST /api/tasks", s.submitTask)
	mux.HandleFunc("GET /api/appointments", s.listAppointments)

	// Message traffic
	mux.HandleFunc("GET /api/messages", s.listArchivedMessages)
	mux.HandleFunc("GET /api/history", s.busHistory)

	// Scheduled jobs
	mux.HandleFunc("GET /api/jobs", s.listJobs)

	// Credentials (names only, values never leave the vault)
	mux.HandleFunc("GET /api/secrets", s.listSecrets)
	mux.HandleFunc("POST /api/secrets", s.createSecret)
	mux.HandleFunc("DELETE /api/secrets/{id}", s.deleteSecret)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	filter := registry.TemplateFilter{
		Category: r.URL.Query().Get("category"),
	}
	if v := r.URL.Query().Get("min_rating"); v != "" {
		if rating, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinRating = rating
		}
	}
	jsonResponse(w, s.registry.ListTemplates(filter))
}

func (s *Server) searchTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		jsonError(w, "q is required", http.StatusBadRequest)
		return
	}
	jsonResponse(w, s.registry.SearchTemplates(q))
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, ok := s.registry.GetTemplate(r.PathValue("id"))
	if !ok {
		jsonError(w, "template not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, tpl)
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl model.AgentTemplate
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if tpl.Name == "" || tpl.Category == "" {
		jsonError(w, "name and category are required", http.StatusBadRequest)
		return
	}

	id, err := s.registry.RegisterTemplate(tpl)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"id": id})
}

func (s *Server) updateTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var upd registry.TemplateUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.registry.UpdateTemplate(id, upd); err != nil {
		if registry.IsNotFound(err) {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	tpl, _ := s.registry.GetTemplate(id)
	jsonResponse(w, tpl)
}

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	filter := registry.InstanceFilter{
		Status: model.AgentStatus(r.URL.Query().Get("status")),
		TeamID: r.URL.Query().Get("team_id"),
	}
	jsonResponse(w, s.registry.ListInstances(filter))
}

func (s *Server) getInstance(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.registry.GetInstance(r.PathValue("id"))
	if !ok {
		jsonError(w, "instance not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, inst)
}

func (s *Server) createInstance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TemplateID string                `json:"template_id"`
		Overrides  model.ConfigOverrides `json:"overrides"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.TemplateID == "" {
		jsonError(w, "template_id is required", http.StatusBadRequest)
		return
	}

	id, err := s.registry.CreateInstance(r.Context(), body.TemplateID, body.Overrides)
	if err != nil {
		if registry.IsNotFound(err) {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"id": id})
}

func (s *Server) destroyInstance(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DestroyInstance(r.Context(), r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "destroyed"})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(model.TaskStatus(r.URL.Query().Get("status")))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, tasks)
}

// submitTask feeds text through the assistant exactly as a chat message
// would, so intent parsing and task inference behave identically across
// channels.
func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Text == "" {
		jsonError(w, "text is required", http.StatusBadRequest)
		return
	}

	resp := s.assistant.ReceiveUserInput(r.Context(), assistant.UserInput{
		Text:    body.Text,
		Channel: "web",
	})
	jsonResponse(w, map[string]any{
		"response": resp.Text,
		"type":     resp.Type,
		"task_id":  resp.TaskID,
	})
}

func (s *Server) listAppointments(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.gm.ActiveAppointments())
}

func (s *Server) listArchivedMessages(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent")
	if agentID == "" {
		jsonError(w, "agent is required", http.StatusBadRequest)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := s.store.ListArchived(agentID, limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, msgs)
}

func (s *Server) busHistory(w http.ResponseWriter, r *http.Request) {
	filter := bus.HistoryFilter{
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
	}
	if v := r.URL.Query().Get("type"); v != "" {
		filter.Types = []model.MessageType{model.MessageType(v)}
	}
	jsonResponse(w, s.bus.History(filter))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		entry := map[string]any{
			"id":               j.ID,
			"name":             j.Name,
			"kind":             j.Kind,
			"schedule":         j.Schedule,
			"schedule_display": schedule.Describe(j.Schedule),
			"status":           j.Status,
			"last_status":      j.LastStatus,
		}
		if j.LastError != "" {
			entry["last_error"] = j.LastError
		}
		if j.NextRunAt != nil {
			entry["next_run"] = j.NextRunAt.UTC()
		}
		out = append(out, entry)
	}
	jsonResponse(w, out)
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	names, err := s.vault.ListCredentials()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]string, 0, len(names))
	for id, name := range names {
		out = append(out, map[string]string{"id": id, "name": name})
	}
	jsonResponse(w, out)
}

func (s *Server) createSecret(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.ID == "" || body.Name == "" || body.Value == "" {
		jsonError(w, "id, name and value are required", http.StatusBadRequest)
		return
	}

	if err := s.vault.StoreCredential(body.ID, body.Name, []byte(body.Value)); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "stored"})
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.DeleteCredential(r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.bus.Stats()
	instances := s.registry.ListInstances(registry.InstanceFilter{})

	busy := 0
	for _, inst := range instances {
		if inst.Status == model.AgentBusy {
			busy++
		}
	}

	jsonResponse(w, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime":         formatUptime(time.Since(s.startedAt)),
		"instances":      len(instances),
		"busy_instances": busy,
		"templates":      len(s.registry.ListTemplates(registry.TemplateFilter{})),
		"appointments":   len(s.gm.ActiveAppointments()),
		"bus":            stats,
		"timestamp":      time.Now().UTC(),
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
