package store

import (
	"database/sql"
	"fmt"
)

// Secret is an encrypted credential at rest. Value holds AES-256-GCM
// ciphertext sealed by the vault; the store never sees plaintext.
type Secret struct {
	ID    string
	Name  string
	Value []byte
	Nonce []byte
}

func (s *Store) SaveSecret(sec Secret) error {
	_, err := s.db.Exec(`
		INSERT INTO secrets (id, name, value, nonce)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			value = excluded.value,
			nonce = excluded.nonce,
			updated_at = CURRENT_TIMESTAMP`,
		sec.ID, sec.Name, sec.Value, sec.Nonce)
	if err != nil {
		return fmt.Errorf("save secret: %w", err)
	}
	return nil
}

func (s *Store) GetSecret(id string) (*Secret, error) {
	var sec Secret
	err := s.db.QueryRow(`SELECT id, name, value, nonce FROM secrets WHERE id = ?`, id).
		Scan(&sec.ID, &sec.Name, &sec.Value, &sec.Nonce)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}
	return &sec, nil
}

// ListSecretNames returns id and name pairs without ciphertext.
func (s *Store) ListSecretNames() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT id, name FROM secrets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (s *Store) DeleteSecret(id string) error {
	_, err := s.db.Exec(`DELETE FROM secrets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}
