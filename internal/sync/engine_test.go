package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/normalize"
	"github.com/matheus3301/wppsync/internal/store"
)

func testEngine(t *testing.T) (*Engine, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	b := bus.New()
	return NewEngine(db, b, nil), db, b
}

func textMsg(chatID, msgID, text string, ts int64) *normalize.Message {
	return &normalize.Message{
		ID:        msgID,
		ChatID:    chatID,
		Timestamp: ts,
		Type:      normalize.TypeText,
		Text:      &text,
		Status:    normalize.StatusPending,
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	e, db, _ := testEngine(t)

	m := textMsg("123@s.whatsapp.net", "MSG1", "hello", 100)
	if err := e.UpsertMessage(m); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := e.UpsertMessage(m); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, err := db.MessageCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("message count = %d, want 1", n)
	}

	msgs, err := db.MessagesForChat("123@s.whatsapp.net", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text == nil || *msgs[0].Text != "hello" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestUpsertMessageDropsMissingIDs(t *testing.T) {
	e, db, _ := testEngine(t)

	cases := []*normalize.Message{
		nil,
		textMsg("123@s.whatsapp.net", "", "no id", 1),
		textMsg("", "MSG1", "no chat", 1),
		textMsg("", "", "nothing", 1),
	}
	for _, m := range cases {
		if err := e.UpsertMessage(m); err != nil {
			t.Errorf("upsert %+v: %v", m, err)
		}
	}

	n, _ := db.MessageCount()
	if n != 0 {
		t.Errorf("message count = %d, want 0", n)
	}
	chats, _ := db.ChatCount()
	if chats != 0 {
		t.Errorf("chat count = %d, want 0", chats)
	}
}

func TestUpsertMessageCreatesChat(t *testing.T) {
	e, db, _ := testEngine(t)

	m := textMsg("group1@g.us", "MSG1", "hi all", 100)
	m.PushName = "Alice"
	if err := e.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	chat, err := db.GetChat("group1@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if chat == nil {
		t.Fatal("chat was not created")
	}
	if !chat.IsGroup {
		t.Error("isGroup = false, want true for @g.us")
	}
	if chat.Name == nil || *chat.Name != "Alice" {
		t.Errorf("name = %v, want Alice", chat.Name)
	}
}

func TestLiveNameNeverClobbers(t *testing.T) {
	e, db, _ := testEngine(t)

	m1 := textMsg("123@s.whatsapp.net", "MSG1", "first", 100)
	m1.PushName = "Alice"
	if err := e.UpsertMessage(m1); err != nil {
		t.Fatal(err)
	}

	m2 := textMsg("123@s.whatsapp.net", "MSG2", "second", 101)
	m2.PushName = "Alicia"
	if err := e.UpsertMessage(m2); err != nil {
		t.Fatal(err)
	}

	chat, _ := db.GetChat("123@s.whatsapp.net")
	if chat.Name == nil || *chat.Name != "Alice" {
		t.Errorf("name = %v, want the first name to stick", chat.Name)
	}
}

func TestRedeliveryOnlyUpdatesStatusAndReaction(t *testing.T) {
	e, db, _ := testEngine(t)

	orig := textMsg("123@s.whatsapp.net", "MSG1", "original", 100)
	if err := e.UpsertMessage(orig); err != nil {
		t.Fatal(err)
	}

	redelivered := textMsg("123@s.whatsapp.net", "MSG1", "tampered", 999)
	redelivered.Status = normalize.StatusRead
	redelivered.Reaction = &normalize.Reaction{Emoji: "❤️", TargetMsgID: "OTHER", From: "123@s.whatsapp.net"}
	if err := e.UpsertMessage(redelivered); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.MessagesForChat("123@s.whatsapp.net", 10)
	if len(msgs) != 1 {
		t.Fatalf("message count = %d", len(msgs))
	}
	got := msgs[0]
	if got.Text == nil || *got.Text != "original" {
		t.Errorf("text = %v, content must be immutable on redelivery", got.Text)
	}
	if got.Timestamp != 100 {
		t.Errorf("timestamp = %d, want 100", got.Timestamp)
	}
	if got.Status != normalize.StatusRead {
		t.Errorf("status = %d, want %d", got.Status, normalize.StatusRead)
	}
	if got.Reaction == nil || got.Reaction.Emoji != "❤️" {
		t.Errorf("reaction = %+v", got.Reaction)
	}
}

func TestSenderDefaultsToChat(t *testing.T) {
	e, db, _ := testEngine(t)

	m := textMsg("123@s.whatsapp.net", "MSG1", "hi", 100)
	m.SenderID = ""
	if err := e.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.MessagesForChat("123@s.whatsapp.net", 10)
	if len(msgs) != 1 || msgs[0].SenderID != "123@s.whatsapp.net" {
		t.Errorf("senderId = %q, want chat id", msgs[0].SenderID)
	}
}

func TestUpdateMessageStatus(t *testing.T) {
	e, db, _ := testEngine(t)

	m := textMsg("123@s.whatsapp.net", "MSG1", "hi", 100)
	if err := e.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	if err := e.UpdateMessageStatus("MSG1", normalize.StatusDeliveryAck); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.MessagesForChat("123@s.whatsapp.net", 10)
	if msgs[0].Status != normalize.StatusDeliveryAck {
		t.Errorf("status = %d, want %d", msgs[0].Status, normalize.StatusDeliveryAck)
	}
}

func TestUpdateMessageStatusUnknownIDIsNoop(t *testing.T) {
	e, db, _ := testEngine(t)

	if err := e.UpdateMessageStatus("NEVER_SEEN", normalize.StatusRead); err != nil {
		t.Fatalf("unknown id should be a no-op, got %v", err)
	}
	n, _ := db.MessageCount()
	if n != 0 {
		t.Errorf("message count = %d, want 0", n)
	}
}

func TestUpsertContactMerges(t *testing.T) {
	e, db, _ := testEngine(t)

	if err := e.UpsertContact(normalize.ContactSummary{
		ID:   "123@s.whatsapp.net",
		Name: "Alice",
	}); err != nil {
		t.Fatal(err)
	}

	// A later partial update must not erase what is already known.
	if err := e.UpsertContact(normalize.ContactSummary{
		ID:     "123@s.whatsapp.net",
		ImgURL: "https://pps.whatsapp.net/p",
	}); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetContact("123@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("contact missing")
	}
	if c.Name == nil || *c.Name != "Alice" {
		t.Errorf("name = %v, want Alice", c.Name)
	}
	if c.ImgURL == nil || *c.ImgURL != "https://pps.whatsapp.net/p" {
		t.Errorf("imgUrl = %v", c.ImgURL)
	}
	if c.PhoneNumber == nil || *c.PhoneNumber != "123" {
		t.Errorf("phoneNumber = %v, want 123", c.PhoneNumber)
	}
	if c.IsBusiness {
		t.Error("isBusiness = true without a verified name")
	}
}

func TestUpsertContactBusinessDerived(t *testing.T) {
	e, db, _ := testEngine(t)

	if err := e.UpsertContact(normalize.ContactSummary{
		ID:           "biz@s.whatsapp.net",
		VerifiedName: "Acme Corp",
	}); err != nil {
		t.Fatal(err)
	}

	c, _ := db.GetContact("biz@s.whatsapp.net")
	if !c.IsBusiness {
		t.Error("isBusiness = false, want derived from verified name")
	}
	if c.VerifiedName == nil || *c.VerifiedName != "Acme Corp" {
		t.Errorf("verifiedName = %v", c.VerifiedName)
	}
}

func TestEngineConsumesBusEvents(t *testing.T) {
	e, db, b := testEngine(t)

	done, unsub := b.Subscribe("message.", 8)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	b.Publish(bus.Event{
		Kind:      "wa.message",
		Timestamp: time.Now(),
		Payload:   textMsg("123@s.whatsapp.net", "MSG1", "via bus", 100),
	})

	select {
	case evt := <-done:
		if evt.Kind != "message.upserted" {
			t.Errorf("kind = %q", evt.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message.upserted")
	}

	n, _ := db.MessageCount()
	if n != 1 {
		t.Errorf("message count = %d, want 1", n)
	}
}

func TestEngineConsumesReceipts(t *testing.T) {
	e, db, b := testEngine(t)

	if err := e.UpsertMessage(textMsg("123@s.whatsapp.net", "MSG1", "hi", 100)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	b.Publish(bus.Event{
		Kind:      "wa.receipt",
		Timestamp: time.Now(),
		Payload:   StatusUpdate{MsgIDs: []string{"MSG1"}, Status: normalize.StatusRead},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs, _ := db.MessagesForChat("123@s.whatsapp.net", 1)
		if len(msgs) == 1 && msgs[0].Status == normalize.StatusRead {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("receipt was never applied")
}
