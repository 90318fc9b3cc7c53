package normalize

// Content-type tags assigned during classification. Exactly one
// sub-object is populated per real protocol message, so the tag is
// derived from whichever one is present.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeDocument = "document"
	TypeSticker  = "sticker"
	TypeReaction = "reaction"
	TypeContact  = "contact"
	TypeLocation = "location"
	TypeProtocol = "protocol"
	TypeUnknown  = "unknown"
)

// Delivery status ordinals, mirroring the gateway's status enum.
const (
	StatusError = iota
	StatusPending
	StatusServerAck
	StatusDeliveryAck
	StatusRead
	StatusPlayed
)

// Message is the canonical, storage-ready form of a protocol message.
// It is a transient value record: produced here, consumed once by the
// sync engine. ID and ChatID are required for persistence; a record
// missing either is dropped downstream, never stored.
type Message struct {
	ID        string
	ChatID    string
	FromMe    bool
	SenderID  string // defaults to ChatID for 1:1 chats when absent
	Timestamp int64  // unix seconds
	PushName  string
	Status    int
	Type      string
	Text      *string
	Media     *Media
	Quoted    *Quoted
	Mentions  []string
	Reaction  *Reaction
}

// Media describes an encrypted media payload. Binary key material and
// hashes are base64 strings so the record stays serialization-safe.
type Media struct {
	URL           string `json:"url,omitempty"`
	DirectPath    string `json:"directPath,omitempty"`
	MediaKey      string `json:"mediaKey,omitempty"`
	Mimetype      string `json:"mimetype,omitempty"`
	FileSize      uint64 `json:"fileSize,omitempty"`
	FileSHA256    string `json:"fileSha256,omitempty"`
	FileEncSHA256 string `json:"fileEncSha256,omitempty"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	Duration      uint32 `json:"duration,omitempty"`
	FileName      string `json:"fileName,omitempty"`
	IsAnimated    bool   `json:"isAnimated,omitempty"`
}

// Quoted references the message a reply points at. Text is only
// populated when the quoted content is plain text.
type Quoted struct {
	MsgID    string `json:"msgId,omitempty"`
	SenderID string `json:"senderId,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Reaction describes an emoji reaction to an earlier message.
type Reaction struct {
	Emoji       string `json:"emoji,omitempty"`
	TargetMsgID string `json:"targetMsgId,omitempty"`
	From        string `json:"from,omitempty"`
}
