package store

import "github.com/matheus3301/wppsync/internal/normalize"

// Chat is the read-model form of a stored chat. Nullable columns are
// pointers so consumers (and the JSON export) can tell unknown from
// zero.
type Chat struct {
	ID             string  `json:"id"`
	Name           *string `json:"name"`
	IsGroup        bool    `json:"isGroup"`
	UnreadCount    int     `json:"unreadCount"`
	UnreadMentions int     `json:"unreadMentions"`
	Pinned         bool    `json:"pinned"`
	MuteEndTime    *int64  `json:"muteEndTime"`
	Archived       bool    `json:"archived"`
	ReadOnly       bool    `json:"readOnly"`
}

// Contact is the read-model form of a stored contact.
type Contact struct {
	ID           string  `json:"id"`
	PhoneNumber  *string `json:"phoneNumber"`
	Name         *string `json:"name"`
	NotifyName   *string `json:"notifyName"`
	ImgURL       *string `json:"imgUrl"`
	IsBusiness   bool    `json:"isBusiness"`
	VerifiedName *string `json:"verifiedName"`
}

// Message is the read-model form of a stored message with its JSON
// sub-documents decoded. A row whose sub-documents fail to parse
// degrades to its scalar fields.
type Message struct {
	MsgID       string              `json:"msgId"`
	ChatID      string              `json:"chatId"`
	FromMe      bool                `json:"fromMe"`
	SenderID    string              `json:"senderId"`
	Timestamp   int64               `json:"timestamp"`
	ContentType string              `json:"contentType"`
	Text        *string             `json:"text"`
	Media       *normalize.Media    `json:"media"`
	Quoted      *normalize.Quoted   `json:"quoted"`
	Mentions    []string            `json:"mentions"`
	Reaction    *normalize.Reaction `json:"reaction"`
	Status      int                 `json:"status"`
	PushName    *string             `json:"pushName"`
}

// ChatWithMessages is a chat with its most recent message window
// attached in ascending timestamp order. LastMessage is the
// chronologically last element of that window, which may be truncated.
type ChatWithMessages struct {
	Chat
	Messages    []Message `json:"messages"`
	LastMessage *Message  `json:"lastMessage"`
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChatID       string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}
