package wa

import (
	"context"
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/normalize"
	"github.com/matheus3301/wppsync/internal/status"
	syncpkg "github.com/matheus3301/wppsync/internal/sync"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// EventHandler processes whatsmeow events, drives the state machine,
// and publishes normalized domain events on the bus. It does NOT call
// the sync engine directly — the engine subscribes to the bus
// independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	adapter *Adapter
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler. adapter may be nil; LID
// senders then keep their hidden-user form.
func NewEventHandler(b *bus.Bus, machine *status.Machine, adapter *Adapter, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:     b,
		machine: machine,
		adapter: adapter,
		logger:  logger,
	}
}

// resolveJID strips the device suffix and maps LID identities back to
// phone number JIDs so one user never shows up as two ids.
func (h *EventHandler) resolveJID(jid types.JID) types.JID {
	jid = jid.ToNonAD()
	if h.adapter != nil {
		jid = h.adapter.ResolveLID(context.Background(), jid)
	}
	return jid
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.Receipt:
		h.handleReceipt(evt)
	case *events.PushName:
		h.publishContact(normalize.ContactSummary{
			ID:         h.resolveJID(evt.JID).String(),
			NotifyName: evt.NewPushName,
		})
	case *events.BusinessName:
		h.publishContact(normalize.ContactSummary{
			ID:           h.resolveJID(evt.JID).String(),
			VerifiedName: evt.NewBusinessName,
		})
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		current := h.machine.Current()
		if current == status.AuthRequired || current == status.Reconnecting {
			_ = h.machine.Transition(status.Connecting)
		}
		_ = h.machine.Transition(status.Syncing)
		h.bus.Publish(bus.Event{Kind: "session.connected", Timestamp: time.Now()})
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		_ = h.machine.Transition(status.Reconnecting)
		h.bus.Publish(bus.Event{Kind: "session.disconnected", Timestamp: time.Now()})
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.AuthRequired)
		h.bus.Publish(bus.Event{Kind: "session.logged_out", Timestamp: time.Now(), Payload: evt.Reason.String()})
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	if h.machine.Current() == status.Syncing {
		_ = h.machine.Transition(status.Ready)
	}

	m := normalize.Normalize(h.liveWebMessage(evt))
	// Protocol messages (revokes, ephemeral settings) carry no content
	// worth a row on the live path.
	if m.Type == normalize.TypeProtocol {
		return
	}

	h.bus.Publish(bus.Event{
		Kind:      "wa.message",
		Timestamp: time.Now(),
		Payload:   m,
	})
}

// liveWebMessage rebuilds the wire form from a live event so the live
// and history paths share one normalization.
func (h *EventHandler) liveWebMessage(evt *events.Message) *waWeb.WebMessageInfo {
	key := &waCommon.MessageKey{
		RemoteJID: proto.String(h.resolveJID(evt.Info.Chat).String()),
		ID:        proto.String(evt.Info.ID),
		FromMe:    proto.Bool(evt.Info.IsFromMe),
	}
	if evt.Info.IsGroup {
		key.Participant = proto.String(h.resolveJID(evt.Info.Sender).String())
	}

	st := waWeb.WebMessageInfo_DELIVERY_ACK
	if evt.Info.IsFromMe {
		st = waWeb.WebMessageInfo_SERVER_ACK
	}

	return &waWeb.WebMessageInfo{
		Key:              key,
		Message:          evt.Message,
		MessageTimestamp: proto.Uint64(uint64(evt.Info.Timestamp.Unix())),
		PushName:         proto.String(evt.Info.PushName),
		Status:           st.Enum(),
	}
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	batch := &syncpkg.HistoryBatch{
		SyncType: data.GetSyncType().String(),
		Progress: data.GetProgress(),
	}

	for _, conv := range data.GetConversations() {
		chat := normalize.ChatFromHistory(conv)
		if chat.ID != "" {
			batch.Chats = append(batch.Chats, chat)
		}
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil {
				continue
			}
			// Some history entries omit the chat on the key.
			if wmsg.GetKey() != nil && wmsg.GetKey().GetRemoteJID() == "" {
				wmsg.Key.RemoteJID = proto.String(conv.GetID())
			}
			batch.Messages = append(batch.Messages, wmsg)
		}
	}

	for _, pn := range data.GetPushnames() {
		c := normalize.ContactFromPushname(pn)
		if c.ID != "" {
			batch.Contacts = append(batch.Contacts, c)
		}
	}

	if len(batch.Chats) == 0 && len(batch.Contacts) == 0 && len(batch.Messages) == 0 {
		return
	}

	h.logger.Info("history sync payload",
		zap.String("type", batch.SyncType),
		zap.Int("chats", len(batch.Chats)),
		zap.Int("contacts", len(batch.Contacts)),
		zap.Int("messages", len(batch.Messages)))

	h.bus.Publish(bus.Event{
		Kind:      "wa.history_batch",
		Timestamp: time.Now(),
		Payload:   batch,
	})
}

func (h *EventHandler) handleReceipt(evt *events.Receipt) {
	st, ok := receiptStatus(evt.Type)
	if !ok {
		return
	}
	ids := make([]string, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		ids = append(ids, string(id))
	}
	if len(ids) == 0 {
		return
	}
	h.bus.Publish(bus.Event{
		Kind:      "wa.receipt",
		Timestamp: time.Now(),
		Payload:   syncpkg.StatusUpdate{MsgIDs: ids, Status: st},
	})
}

// receiptStatus maps a receipt type onto the stored status ordinal.
// Receipt kinds with no delivery meaning (retry, sender) are ignored.
func receiptStatus(t types.ReceiptType) (int, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return normalize.StatusDeliveryAck, true
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		return normalize.StatusRead, true
	case types.ReceiptTypePlayed, types.ReceiptTypePlayedSelf:
		return normalize.StatusPlayed, true
	default:
		return 0, false
	}
}

func (h *EventHandler) publishContact(c normalize.ContactSummary) {
	if c.ID == "" {
		return
	}
	h.bus.Publish(bus.Event{
		Kind:      "wa.contact",
		Timestamp: time.Now(),
		Payload:   c,
	})
}
