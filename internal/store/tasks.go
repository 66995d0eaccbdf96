package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mtzanidakis/agency/internal/model"
)

func (s *Store) SaveTask(t *model.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks (id, type, status, priority, created_by, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			status = excluded.status,
			priority = excluded.priority,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`,
		t.ID, string(t.Type), string(t.Status), string(t.Priority), t.CreatedBy, string(data))
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(id string) (*model.Task, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM tasks WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	var t model.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &t, nil
}

// ListTasks returns tasks in creation order, optionally filtered by
// status.
func (s *Store) ListTasks(status model.TaskStatus) ([]model.Task, error) {
	query := `SELECT data FROM tasks ORDER BY created_at`
	args := []any{}
	if status != "" {
		query = `SELECT data FROM tasks WHERE status = ? ORDER BY created_at`
		args = append(args, string(status))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var t model.Task
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("unmarshal task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) DeleteTask(id string) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
