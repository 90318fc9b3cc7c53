package outbox

import (
	"context"
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/normalize"
	"github.com/matheus3301/wppsync/internal/store"
	syncpkg "github.com/matheus3301/wppsync/internal/sync"
	"go.uber.org/zap"
)

// TextSender is the interface for sending text messages via WhatsApp.
type TextSender interface {
	SendText(ctx context.Context, jid string, text string) (serverMsgID string, err error)
}

// Sender drains the outbox and sends messages via the WhatsApp adapter.
// Each entry gets an optimistic message row under its client id, rekeyed
// to the server id once the send is acknowledged.
type Sender struct {
	db     *store.DB
	engine *syncpkg.Engine
	sender TextSender
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, engine *syncpkg.Engine, sender TextSender, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:     db,
		engine: engine,
		sender: sender,
		bus:    b,
		logger: logger,
	}
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		// Optimistic row so the message is queryable before the ack.
		body := entry.Body
		if err := s.engine.UpsertMessage(&normalize.Message{
			ID:        entry.ClientMsgID,
			ChatID:    entry.ChatID,
			FromMe:    true,
			SenderID:  entry.ChatID,
			Timestamp: time.Now().Unix(),
			Type:      normalize.TypeText,
			Text:      &body,
			Status:    normalize.StatusPending,
		}); err != nil {
			s.logger.Error("failed to insert outgoing message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}

		serverMsgID, err := s.sender.SendText(ctx, entry.ChatID, entry.Body)
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			_ = s.engine.UpdateMessageStatus(entry.ClientMsgID, normalize.StatusError)
			s.bus.Publish(bus.Event{
				Kind:      "message.send_failed",
				Timestamp: time.Now(),
				Payload: map[string]string{
					"client_msg_id": entry.ClientMsgID,
					"error":         err.Error(),
				},
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, serverMsgID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}

		// The delivery echo arrives under the server id; rekey so it
		// merges into this row instead of duplicating.
		if err := s.db.RekeyMessage(entry.ClientMsgID, serverMsgID, normalize.StatusServerAck); err != nil {
			s.logger.Error("failed to rekey message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}

		s.logger.Info("message sent", zap.String("client_msg_id", entry.ClientMsgID), zap.String("server_msg_id", serverMsgID))
		s.bus.Publish(bus.Event{
			Kind:      "message.send_ack",
			Timestamp: time.Now(),
			Payload: map[string]string{
				"client_msg_id": entry.ClientMsgID,
				"server_msg_id": serverMsgID,
			},
		})
	}
}
