package sync

import (
	"fmt"
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/normalize"
	"github.com/matheus3301/wppsync/internal/store"
	"go.mau.fi/whatsmeow/proto/waWeb"
)

// HistoryBatch is the payload of a "wa.history_batch" event: one
// history-sync payload decoded by the gateway.
type HistoryBatch struct {
	SyncType string
	Progress uint32
	Chats    []normalize.ChatSummary
	Contacts []normalize.ContactSummary
	Messages []*waWeb.WebMessageInfo
}

// BatchResult reports what a history batch actually changed.
type BatchResult struct {
	ChatsApplied    int `json:"chatsApplied"`
	ContactsApplied int `json:"contactsApplied"`
	MessagesApplied int `json:"messagesApplied"`
	MessagesSkipped int `json:"messagesSkipped"`
}

// ApplyHistoryBatch reconciles one history-sync payload into the store
// in a single transaction. History carries full server-side truth, so
// unlike the live path its message rows overwrite stored content. Chat
// and contact names still only fill gaps: a name learned from the live
// path is authoritative over a batch that carries none.
func (e *Engine) ApplyHistoryBatch(chats []normalize.ChatSummary, contacts []normalize.ContactSummary, raw []*waWeb.WebMessageInfo) (BatchResult, error) {
	var result BatchResult

	tx, err := e.db.Begin()
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chatStmt, err := tx.Prepare(`
		INSERT INTO Chats (id, name, isGroup, unreadCount, unreadMentions, pinned, muteEndTime, archived, readOnly)
		VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, NULLIF(?, 0), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = COALESCE(excluded.name, Chats.name),
			isGroup = excluded.isGroup,
			unreadCount = excluded.unreadCount,
			unreadMentions = excluded.unreadMentions,
			pinned = excluded.pinned,
			muteEndTime = excluded.muteEndTime,
			archived = excluded.archived,
			readOnly = excluded.readOnly`)
	if err != nil {
		return result, fmt.Errorf("prepare chat upsert: %w", err)
	}
	defer chatStmt.Close()

	for _, c := range chats {
		if c.ID == "" {
			continue
		}
		if _, err := chatStmt.Exec(c.ID, c.Name, c.IsGroup, c.UnreadCount,
			c.UnreadMentions, c.Pinned, c.MuteEndTime, c.Archived, c.ReadOnly); err != nil {
			return result, fmt.Errorf("upsert chat %q: %w", c.ID, err)
		}
		result.ChatsApplied++
	}

	contactStmt, err := tx.Prepare(`
		INSERT INTO Contacts (id, phoneNumber, name, notifyName, imgUrl, isBusiness, verifiedName)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, '') IS NOT NULL, NULLIF(?, ''))
		ON CONFLICT(id) DO UPDATE SET
			phoneNumber = excluded.phoneNumber,
			name = COALESCE(excluded.name, Contacts.name),
			notifyName = COALESCE(excluded.notifyName, Contacts.notifyName),
			imgUrl = excluded.imgUrl,
			isBusiness = excluded.isBusiness,
			verifiedName = excluded.verifiedName`)
	if err != nil {
		return result, fmt.Errorf("prepare contact upsert: %w", err)
	}
	defer contactStmt.Close()

	for _, c := range contacts {
		if c.ID == "" {
			continue
		}
		if _, err := contactStmt.Exec(c.ID, c.PhoneNumber(), c.Name, c.NotifyName,
			c.ImgURL, c.VerifiedName, c.VerifiedName); err != nil {
			return result, fmt.Errorf("upsert contact %q: %w", c.ID, err)
		}
		result.ContactsApplied++
	}

	// Chats referenced only by messages still get a placeholder row so
	// the foreign key holds inside the transaction.
	holeStmt, err := tx.Prepare(`
		INSERT INTO Chats (id, name, isGroup)
		VALUES (?, NULLIF(?, ''), ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name
			WHERE Chats.name IS NULL`)
	if err != nil {
		return result, fmt.Errorf("prepare chat placeholder: %w", err)
	}
	defer holeStmt.Close()

	msgStmt, err := tx.Prepare(`
		INSERT INTO Messages (msgId, chatId, fromMe, senderId, timestamp, contentType, textBody, media, quoted, mentions, reaction, status, pushName)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))
		ON CONFLICT(msgId) DO UPDATE SET
			chatId = excluded.chatId,
			fromMe = excluded.fromMe,
			senderId = excluded.senderId,
			timestamp = excluded.timestamp,
			contentType = excluded.contentType,
			textBody = excluded.textBody,
			media = excluded.media,
			quoted = excluded.quoted,
			mentions = excluded.mentions,
			reaction = excluded.reaction,
			status = excluded.status,
			pushName = excluded.pushName`)
	if err != nil {
		return result, fmt.Errorf("prepare message upsert: %w", err)
	}
	defer msgStmt.Close()

	for _, info := range raw {
		m := normalize.Normalize(info)
		if m.ID == "" || m.ChatID == "" {
			result.MessagesSkipped++
			continue
		}

		if _, err := holeStmt.Exec(m.ChatID, m.PushName, normalize.IsGroupID(m.ChatID)); err != nil {
			return result, fmt.Errorf("upsert chat %q: %w", m.ChatID, err)
		}

		sender := m.SenderID
		if sender == "" {
			sender = m.ChatID
		}
		if _, err := msgStmt.Exec(m.ID, m.ChatID, m.FromMe, sender, m.Timestamp,
			m.Type, m.Text, store.EncodeDoc(m.Media), store.EncodeDoc(m.Quoted),
			store.EncodeDoc(m.Mentions), store.EncodeDoc(m.Reaction),
			m.Status, m.PushName); err != nil {
			return result, fmt.Errorf("upsert message %q: %w", m.ID, err)
		}
		result.MessagesApplied++
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "sync.history_applied",
		Timestamp: time.Now(),
		Payload:   result,
	})

	return result, nil
}
