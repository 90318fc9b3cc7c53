package normalize

import (
	"strings"

	"go.mau.fi/whatsmeow/proto/waHistorySync"
)

const groupSuffix = "@g.us"

// ChatSummary is chat metadata from a history batch. Empty string
// means unknown; the store maps it to NULL so the coalesce merge rules
// can tell "absent" from "set".
type ChatSummary struct {
	ID             string
	Name           string
	IsGroup        bool
	UnreadCount    int
	UnreadMentions int
	Pinned         bool
	MuteEndTime    int64 // unix seconds, 0 = not muted
	Archived       bool
	ReadOnly       bool
}

// ContactSummary is contact metadata from a history batch or a live
// metadata update. The business flag is not carried here: it is
// derived at persistence time from the presence of a verified name.
type ContactSummary struct {
	ID           string
	Name         string
	NotifyName   string
	ImgURL       string
	VerifiedName string
}

// PhoneNumber derives the phone number from the contact id. Group ids
// carry no phone number.
func (c ContactSummary) PhoneNumber() string {
	return PhoneFromID(c.ID)
}

// IsGroupID reports whether id addresses a group chat.
func IsGroupID(id string) bool {
	return strings.HasSuffix(id, groupSuffix)
}

// PhoneFromID extracts the phone number portion of a non-group id.
func PhoneFromID(id string) string {
	if id == "" || IsGroupID(id) {
		return ""
	}
	user, _, _ := strings.Cut(id, "@")
	return user
}

// ChatFromHistory maps a history-sync conversation into a ChatSummary.
func ChatFromHistory(conv *waHistorySync.Conversation) ChatSummary {
	id := conv.GetID()
	name := conv.GetName()
	if name == "" {
		name = conv.GetUsername()
	}
	return ChatSummary{
		ID:             id,
		Name:           name,
		IsGroup:        IsGroupID(id),
		UnreadCount:    int(conv.GetUnreadCount()),
		UnreadMentions: int(conv.GetUnreadMentionCount()),
		Pinned:         conv.GetPinned() != 0,
		MuteEndTime:    int64(conv.GetMuteEndTime()),
		Archived:       conv.GetArchived(),
		ReadOnly:       conv.GetReadOnly(),
	}
}

// ContactFromPushname maps a history-sync push name entry into a
// ContactSummary.
func ContactFromPushname(pn *waHistorySync.Pushname) ContactSummary {
	return ContactSummary{
		ID:         pn.GetID(),
		NotifyName: pn.GetPushname(),
	}
}
