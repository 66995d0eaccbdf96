package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mtzanidakis/agency/internal/model"
)

func (s *Store) SaveTemplate(t *model.AgentTemplate) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO templates (id, name, category, rating, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			rating = excluded.rating,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`,
		t.ID, t.Name, t.Category, t.Rating, string(data))
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(id string) (*model.AgentTemplate, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM templates WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}

	var t model.AgentTemplate
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return &t, nil
}

func (s *Store) ListTemplates() ([]model.AgentTemplate, error) {
	rows, err := s.db.Query(`SELECT data FROM templates ORDER BY rating DESC, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.AgentTemplate
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		var t model.AgentTemplate
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("unmarshal template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *Store) DeleteTemplate(id string) error {
	_, err := s.db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}
