package store

import (
	"slices"
	"time"
)

// InsertMessage records m. Inserting the same MsgID twice is a no-op.
func (db *DB) InsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (peer, msg_id, sender_id, sender_name, receiver, body, kind, style, color, incoming, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(msg_id) DO NOTHING`,
		m.Peer, m.MsgID, m.SenderID, m.SenderName, m.Receiver, m.Body, m.Kind, m.Style, m.Color, m.Incoming, m.Timestamp, now)
	return err
}

// SelectMessageHistory returns the last limit messages exchanged with peer,
// oldest first.
func (db *DB) SelectMessageHistory(peer string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, peer, msg_id, sender_id, sender_name, receiver, body, kind, style, color, incoming, timestamp
		FROM messages
		WHERE peer = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, peer, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Peer, &m.MsgID, &m.SenderID, &m.SenderName, &m.Receiver, &m.Body, &m.Kind, &m.Style, &m.Color, &m.Incoming, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}
