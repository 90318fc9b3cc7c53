package store

import "database/sql"

const chatColumns = `id, name, isGroup, unreadCount, unreadMentions, pinned, muteEndTime, archived, readOnly`

// AllChats returns chats ordered by the timestamp of their most recent
// message, newest chat first, bounded by limit. A non-positive limit
// returns every chat.
func (db *DB) AllChats(limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT `+chatColumns+`
		FROM Chats c
		ORDER BY COALESCE((SELECT MAX(timestamp) FROM Messages m WHERE m.chatId = c.id), 0) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by id, or nil if not found.
func (db *DB) GetChat(id string) (*Chat, error) {
	row := db.QueryRow(`SELECT `+chatColumns+` FROM Chats WHERE id = ?`, id)
	c, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM Chats`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(r rowScanner) (Chat, error) {
	var c Chat
	var name sql.NullString
	var muteEnd sql.NullInt64
	err := r.Scan(&c.ID, &name, &c.IsGroup, &c.UnreadCount, &c.UnreadMentions,
		&c.Pinned, &muteEnd, &c.Archived, &c.ReadOnly)
	if err != nil {
		return Chat{}, err
	}
	c.Name = strPtr(name)
	c.MuteEndTime = intPtr(muteEnd)
	return c, nil
}
