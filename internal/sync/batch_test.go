package sync

import (
	"testing"
	"time"

	"github.com/matheus3301/wppsync/internal/normalize"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"google.golang.org/protobuf/proto"
)

func histMsg(chatID, msgID, text string, ts uint64) *waWeb.WebMessageInfo {
	return &waWeb.WebMessageInfo{
		Key: &waCommon.MessageKey{
			RemoteJID: proto.String(chatID),
			ID:        proto.String(msgID),
			FromMe:    proto.Bool(false),
		},
		Message:          &waE2E.Message{Conversation: proto.String(text)},
		MessageTimestamp: proto.Uint64(ts),
	}
}

func TestApplyHistoryBatch(t *testing.T) {
	e, db, _ := testEngine(t)

	chats := []normalize.ChatSummary{
		{ID: "111@s.whatsapp.net", Name: "Alice", UnreadCount: 3},
		{ID: "grp@g.us", Name: "Family", IsGroup: true, Pinned: true},
	}
	contacts := []normalize.ContactSummary{
		{ID: "111@s.whatsapp.net", Name: "Alice", NotifyName: "ali"},
		{ID: "222@s.whatsapp.net", VerifiedName: "Acme Corp"},
	}
	raw := []*waWeb.WebMessageInfo{
		histMsg("111@s.whatsapp.net", "H1", "hey", 100),
		histMsg("grp@g.us", "H2", "dinner at 8", 200),
		{Message: &waE2E.Message{Conversation: proto.String("no key")}},
	}

	result, err := e.ApplyHistoryBatch(chats, contacts, raw)
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if result.ChatsApplied != 2 || result.ContactsApplied != 2 {
		t.Errorf("result = %+v", result)
	}
	if result.MessagesApplied != 2 || result.MessagesSkipped != 1 {
		t.Errorf("messages applied/skipped = %d/%d, want 2/1", result.MessagesApplied, result.MessagesSkipped)
	}

	chat, _ := db.GetChat("111@s.whatsapp.net")
	if chat.Name == nil || *chat.Name != "Alice" || chat.UnreadCount != 3 {
		t.Errorf("chat = %+v", chat)
	}

	biz, _ := db.GetContact("222@s.whatsapp.net")
	if !biz.IsBusiness {
		t.Error("verified contact should be flagged as business")
	}

	view, err := db.ChatsWithMessages(10, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(view) != 2 {
		t.Fatalf("view chats = %d", len(view))
	}
	// Chats are ordered by latest message, newest first.
	if view[0].ID != "grp@g.us" {
		t.Errorf("first chat = %q, want the one with the newest message", view[0].ID)
	}
	if view[0].LastMessage == nil || view[0].LastMessage.MsgID != "H2" {
		t.Errorf("lastMessage = %+v", view[0].LastMessage)
	}
}

func TestBatchMessagesOverwriteLive(t *testing.T) {
	e, db, _ := testEngine(t)

	live := textMsg("111@s.whatsapp.net", "MSG1", "partial", 100)
	if err := e.UpsertMessage(live); err != nil {
		t.Fatal(err)
	}

	_, err := e.ApplyHistoryBatch(nil, nil, []*waWeb.WebMessageInfo{
		histMsg("111@s.whatsapp.net", "MSG1", "authoritative", 150),
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.MessagesForChat("111@s.whatsapp.net", 10)
	if len(msgs) != 1 {
		t.Fatalf("message count = %d", len(msgs))
	}
	if msgs[0].Text == nil || *msgs[0].Text != "authoritative" {
		t.Errorf("text = %v, history must supersede the live row", msgs[0].Text)
	}
	if msgs[0].Timestamp != 150 {
		t.Errorf("timestamp = %d, want 150", msgs[0].Timestamp)
	}
}

func TestBatchChatNameFillsGapsOnly(t *testing.T) {
	e, db, _ := testEngine(t)

	// A name learned from the live path survives a batch without one.
	named := textMsg("111@s.whatsapp.net", "MSG1", "hi", 100)
	named.PushName = "Alice"
	if err := e.UpsertMessage(named); err != nil {
		t.Fatal(err)
	}

	if _, err := e.ApplyHistoryBatch([]normalize.ChatSummary{
		{ID: "111@s.whatsapp.net", UnreadCount: 7},
	}, nil, nil); err != nil {
		t.Fatal(err)
	}

	chat, _ := db.GetChat("111@s.whatsapp.net")
	if chat.Name == nil || *chat.Name != "Alice" {
		t.Errorf("name = %v, a nameless batch must not erase it", chat.Name)
	}
	if chat.UnreadCount != 7 {
		t.Errorf("unreadCount = %d, counts are batch-owned", chat.UnreadCount)
	}

	// A batch name fills an unnamed chat.
	if err := e.UpsertMessage(textMsg("222@s.whatsapp.net", "MSG2", "yo", 100)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ApplyHistoryBatch([]normalize.ChatSummary{
		{ID: "222@s.whatsapp.net", Name: "Bob"},
	}, nil, nil); err != nil {
		t.Fatal(err)
	}
	chat2, _ := db.GetChat("222@s.whatsapp.net")
	if chat2.Name == nil || *chat2.Name != "Bob" {
		t.Errorf("name = %v, want Bob", chat2.Name)
	}
}

func TestChatNameAuthorityInterleaving(t *testing.T) {
	e, db, _ := testEngine(t)

	// Batch names a chat, then a live push name arrives for it.
	if _, err := e.ApplyHistoryBatch([]normalize.ChatSummary{
		{ID: "111@s.whatsapp.net", Name: "Saved Name"},
	}, nil, nil); err != nil {
		t.Fatal(err)
	}

	m := textMsg("111@s.whatsapp.net", "MSG1", "hello", 100)
	m.PushName = "Push Name"
	if err := e.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	chat, _ := db.GetChat("111@s.whatsapp.net")
	if chat.Name == nil || *chat.Name != "Saved Name" {
		t.Errorf("name = %v, live push name must not replace a set name", chat.Name)
	}
}

func TestBatchOrdersMessagesByTimestamp(t *testing.T) {
	e, db, _ := testEngine(t)

	_, err := e.ApplyHistoryBatch(nil, nil, []*waWeb.WebMessageInfo{
		histMsg("111@s.whatsapp.net", "M5", "five", 5),
		histMsg("111@s.whatsapp.net", "M1", "one", 1),
		histMsg("111@s.whatsapp.net", "M3", "three", 3),
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.MessagesForChat("111@s.whatsapp.net", 10)
	if len(msgs) != 3 {
		t.Fatalf("message count = %d", len(msgs))
	}
	for i, want := range []int64{1, 3, 5} {
		if msgs[i].Timestamp != want {
			t.Errorf("msgs[%d].Timestamp = %d, want %d", i, msgs[i].Timestamp, want)
		}
	}
}

func TestBatchContactMergeRules(t *testing.T) {
	e, db, _ := testEngine(t)

	if _, err := e.ApplyHistoryBatch(nil, []normalize.ContactSummary{
		{ID: "111@s.whatsapp.net", Name: "Alice", ImgURL: "https://pps.whatsapp.net/old"},
	}, nil); err != nil {
		t.Fatal(err)
	}

	// Re-sync without a name but with a new picture: name coalesces,
	// picture is overwritten.
	if _, err := e.ApplyHistoryBatch(nil, []normalize.ContactSummary{
		{ID: "111@s.whatsapp.net", ImgURL: "https://pps.whatsapp.net/new"},
	}, nil); err != nil {
		t.Fatal(err)
	}

	c, _ := db.GetContact("111@s.whatsapp.net")
	if c.Name == nil || *c.Name != "Alice" {
		t.Errorf("name = %v, want Alice", c.Name)
	}
	if c.ImgURL == nil || *c.ImgURL != "https://pps.whatsapp.net/new" {
		t.Errorf("imgUrl = %v", c.ImgURL)
	}
}

func TestBatchIsIdempotent(t *testing.T) {
	e, db, _ := testEngine(t)

	chats := []normalize.ChatSummary{{ID: "111@s.whatsapp.net", Name: "Alice"}}
	raw := []*waWeb.WebMessageInfo{histMsg("111@s.whatsapp.net", "H1", "hey", 100)}

	if _, err := e.ApplyHistoryBatch(chats, nil, raw); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ApplyHistoryBatch(chats, nil, raw); err != nil {
		t.Fatal(err)
	}

	n, _ := db.MessageCount()
	if n != 1 {
		t.Errorf("message count = %d, want 1", n)
	}
	chatCount, _ := db.ChatCount()
	if chatCount != 1 {
		t.Errorf("chat count = %d, want 1", chatCount)
	}
}

func TestBatchPublishesResult(t *testing.T) {
	e, _, b := testEngine(t)

	ch, unsub := b.Subscribe("sync.", 8)
	defer unsub()

	if _, err := e.ApplyHistoryBatch(nil, nil, []*waWeb.WebMessageInfo{
		histMsg("111@s.whatsapp.net", "H1", "hey", 100),
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != "sync.history_applied" {
			t.Errorf("kind = %q", evt.Kind)
		}
		result, ok := evt.Payload.(BatchResult)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if result.MessagesApplied != 1 {
			t.Errorf("result = %+v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("no sync.history_applied event")
	}
}
