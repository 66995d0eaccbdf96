package store

import (
	"fmt"
	"time"

	"github.com/mtzanidakis/agency/internal/model"
)

// ArchivedMessage is a flattened row from the message archive, used by
// the web API. Payloads are stored as raw JSON text.
type ArchivedMessage struct {
	MsgID     string    `json:"msgId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Store) ArchiveMessage(m model.AgentMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (msg_id, sender, recipient, type, priority, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.From, m.To, string(m.Type), string(m.Priority), string(m.Payload))
	if err != nil {
		return fmt.Errorf("archive message: %w", err)
	}
	return nil
}

// ListArchived returns the most recent archived messages, newest first.
// agentID, when non-empty, matches either sender or recipient.
func (s *Store) ListArchived(agentID string, limit int) ([]ArchivedMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT msg_id, sender, recipient, type, priority, payload, created_at
		FROM messages ORDER BY id DESC LIMIT ?`
	args := []any{limit}
	if agentID != "" {
		query = `SELECT msg_id, sender, recipient, type, priority, payload, created_at
			FROM messages WHERE sender = ? OR recipient = ? ORDER BY id DESC LIMIT ?`
		args = []any{agentID, agentID, limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archived messages: %w", err)
	}
	defer rows.Close()

	var msgs []ArchivedMessage
	for rows.Next() {
		var m ArchivedMessage
		if err := rows.Scan(&m.MsgID, &m.From, &m.To, &m.Type, &m.Priority, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan archived message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PruneArchive deletes archived messages older than the cutoff and
// returns the number of rows removed.
func (s *Store) PruneArchive(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune archive: %w", err)
	}
	return res.RowsAffected()
}
