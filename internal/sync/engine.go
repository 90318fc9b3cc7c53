package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/normalize"
	"github.com/matheus3301/wppsync/internal/store"
	"go.uber.org/zap"
)

// Engine applies canonical records to the store with deterministic,
// idempotent merge rules. It is the single writer: it subscribes to
// "wa.*" events on the bus and processes them sequentially.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// StatusUpdate is the payload of a "wa.receipt" event: a delivery
// status change for one or more message ids.
type StatusUpdate struct {
	MsgIDs []string
	Status int
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to inbound gateway events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("wa.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// handleEvent dispatches one bus event. Live-path failures are logged
// and swallowed: the event stream must not stall on one bad record.
func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "wa.message":
		msg, ok := evt.Payload.(*normalize.Message)
		if !ok {
			return
		}
		if err := e.UpsertMessage(msg); err != nil {
			e.logger.Error("failed to upsert message", zap.Error(err), zap.String("msg_id", msg.ID))
		}
	case "wa.history_batch":
		batch, ok := evt.Payload.(*HistoryBatch)
		if !ok {
			return
		}
		result, err := e.ApplyHistoryBatch(batch.Chats, batch.Contacts, batch.Messages)
		if err != nil {
			e.logger.Error("failed to apply history batch", zap.Error(err),
				zap.Int("chats", len(batch.Chats)), zap.Int("messages", len(batch.Messages)))
			return
		}
		e.logger.Info("history batch applied",
			zap.String("type", batch.SyncType),
			zap.Int("chats", result.ChatsApplied),
			zap.Int("contacts", result.ContactsApplied),
			zap.Int("messages", result.MessagesApplied),
			zap.Int("skipped", result.MessagesSkipped))
		if batch.SyncType != "" {
			if err := e.db.SetCheckpoint("history_sync_type", batch.SyncType); err != nil {
				e.logger.Warn("failed to record sync checkpoint", zap.Error(err))
			}
			_ = e.db.SetCheckpoint("history_sync_progress", strconv.Itoa(int(batch.Progress)))
		}
	case "wa.receipt":
		upd, ok := evt.Payload.(StatusUpdate)
		if !ok {
			return
		}
		for _, id := range upd.MsgIDs {
			if err := e.UpdateMessageStatus(id, upd.Status); err != nil {
				e.logger.Error("failed to update message status", zap.Error(err), zap.String("msg_id", id))
			}
		}
	case "wa.contact":
		c, ok := evt.Payload.(normalize.ContactSummary)
		if !ok {
			return
		}
		if err := e.UpsertContact(c); err != nil {
			e.logger.Error("failed to upsert contact", zap.Error(err), zap.String("contact_id", c.ID))
		}
	}
}

// UpsertMessage applies a single live message record. Records missing
// either correlation id are dropped silently. The owning chat row and
// the message row commit in one transaction, chat first, so a message
// never references a missing chat.
func (e *Engine) UpsertMessage(m *normalize.Message) error {
	if m == nil || m.ID == "" || m.ChatID == "" {
		return nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Minimal chat row. A push name from a live message never
	// overwrites a name that is already known.
	if _, err := tx.Exec(`
		INSERT INTO Chats (id, name, isGroup)
		VALUES (?, NULLIF(?, ''), ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name
			WHERE Chats.name IS NULL`,
		m.ChatID, m.PushName, normalize.IsGroupID(m.ChatID)); err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}

	sender := m.SenderID
	if sender == "" {
		sender = m.ChatID
	}

	// On re-delivery of the same id only status and reaction may
	// change; original content is immutable.
	if _, err := tx.Exec(`
		INSERT INTO Messages (msgId, chatId, fromMe, senderId, timestamp, contentType, textBody, media, quoted, mentions, reaction, status, pushName)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))
		ON CONFLICT(msgId) DO UPDATE SET
			status = excluded.status,
			reaction = excluded.reaction`,
		m.ID, m.ChatID, m.FromMe, sender, m.Timestamp, m.Type, m.Text,
		store.EncodeDoc(m.Media), store.EncodeDoc(m.Quoted),
		store.EncodeDoc(m.Mentions), store.EncodeDoc(m.Reaction),
		m.Status, m.PushName); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "message.upserted",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"chat_id": m.ChatID,
			"msg_id":  m.ID,
		},
	})

	return nil
}

// UpdateMessageStatus applies a delivery status change. An id that was
// never stored is a no-op, consistent with drop-on-missing-id.
func (e *Engine) UpdateMessageStatus(msgID string, status int) error {
	if msgID == "" {
		return nil
	}
	_, err := e.db.Exec(`UPDATE Messages SET status = ? WHERE msgId = ?`, status, msgID)
	return err
}

// UpsertContact merges a contact metadata update: incoming non-null
// fields win, absent fields keep their stored value. The business flag
// is derived from the merged verified name, never copied.
func (e *Engine) UpsertContact(c normalize.ContactSummary) error {
	if c.ID == "" {
		return nil
	}
	_, err := e.db.Exec(`
		INSERT INTO Contacts (id, phoneNumber, name, notifyName, imgUrl, isBusiness, verifiedName)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, '') IS NOT NULL, NULLIF(?, ''))
		ON CONFLICT(id) DO UPDATE SET
			name = COALESCE(excluded.name, Contacts.name),
			notifyName = COALESCE(excluded.notifyName, Contacts.notifyName),
			imgUrl = COALESCE(excluded.imgUrl, Contacts.imgUrl),
			verifiedName = COALESCE(excluded.verifiedName, Contacts.verifiedName),
			isBusiness = COALESCE(excluded.verifiedName, Contacts.verifiedName) IS NOT NULL`,
		c.ID, c.PhoneNumber(), c.Name, c.NotifyName, c.ImgURL, c.VerifiedName, c.VerifiedName)
	if err != nil {
		return fmt.Errorf("upsert contact %q: %w", c.ID, err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "contact.updated",
		Timestamp: time.Now(),
		Payload:   map[string]string{"contact_id": c.ID},
	})
	return nil
}
