package store

import (
	"database/sql"
	"slices"
)

const messageColumns = `msgId, chatId, fromMe, senderId, timestamp, contentType, textBody, media, quoted, mentions, reaction, status, pushName`

// MessagesForChat returns the most recent messages of a chat in
// ascending timestamp order. The window is selected newest-first so
// the limit applies to the most recent messages, then reversed. A
// non-positive limit returns the whole chat.
func (db *DB) MessagesForChat(chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM Messages
		WHERE chatId = ?
		ORDER BY timestamp DESC
		LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// RekeyMessage renames a message id in place, used when a provisional
// outgoing id is replaced by the server-assigned one. If the new id
// already exists the provisional row is dropped instead.
func (db *DB) RekeyMessage(oldID, newID string, status int) error {
	if _, err := db.Exec(`UPDATE OR IGNORE Messages SET msgId = ?, status = ? WHERE msgId = ?`,
		newID, status, oldID); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM Messages WHERE msgId = ?`, oldID)
	return err
}

// AllMessages returns every stored message in ascending timestamp order.
func (db *DB) AllMessages() ([]Message, error) {
	rows, err := db.Query(`SELECT ` + messageColumns + ` FROM Messages ORDER BY timestamp ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectMessages(rows)
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM Messages`).Scan(&count)
	return count, err
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanMessage(r rowScanner) (Message, error) {
	var m Message
	var senderID, contentType, text, pushName sql.NullString
	var media, quoted, mentions, reaction sql.NullString
	var status sql.NullInt64
	err := r.Scan(&m.MsgID, &m.ChatID, &m.FromMe, &senderID, &m.Timestamp,
		&contentType, &text, &media, &quoted, &mentions, &reaction, &status, &pushName)
	if err != nil {
		return Message{}, err
	}
	m.SenderID = senderID.String
	m.ContentType = contentType.String
	if m.ContentType == "" {
		m.ContentType = "unknown"
	}
	m.Text = strPtr(text)
	m.Status = int(status.Int64)
	m.PushName = strPtr(pushName)
	// Sub-document parse failure degrades this row to scalars only.
	_ = decodeMessageDocs(&m, media, quoted, mentions, reaction)
	return m, nil
}
