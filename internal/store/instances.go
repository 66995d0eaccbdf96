package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mtzanidakis/agency/internal/model"
)

func (s *Store) SaveInstance(inst *model.AgentInstance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO instances (id, template_id, status, node_id, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			template_id = excluded.template_id,
			status = excluded.status,
			node_id = excluded.node_id,
			data = excluded.data,
			last_active_at = CURRENT_TIMESTAMP`,
		inst.ID, inst.TemplateID, string(inst.Status), inst.NodeID, string(data))
	if err != nil {
		return fmt.Errorf("save instance: %w", err)
	}
	return nil
}

func (s *Store) GetInstance(id string) (*model.AgentInstance, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM instances WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}

	var inst model.AgentInstance
	if err := json.Unmarshal([]byte(data), &inst); err != nil {
		return nil, fmt.Errorf("unmarshal instance: %w", err)
	}
	return &inst, nil
}

func (s *Store) ListInstances() ([]model.AgentInstance, error) {
	rows, err := s.db.Query(`SELECT data FROM instances ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []model.AgentInstance
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		var inst model.AgentInstance
		if err := json.Unmarshal([]byte(data), &inst); err != nil {
			return nil, fmt.Errorf("unmarshal instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (s *Store) DeleteInstance(id string) error {
	_, err := s.db.Exec(`DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	return nil
}
