package normalize

import (
	"encoding/base64"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
)

// Normalize maps a raw gateway message into its canonical form. It is
// total: unrecognized or malformed shapes degrade to a record with nil
// payload fields rather than failing, so the pipeline always has a row
// to reason about. The correlation ids may still be unrecoverable, in
// which case persistence drops the record.
func Normalize(info *waWeb.WebMessageInfo) *Message {
	m := &Message{Type: TypeUnknown}
	if info == nil {
		return m
	}

	key := info.GetKey()
	m.ID = key.GetID()
	m.ChatID = key.GetRemoteJID()
	m.FromMe = key.GetFromMe()
	m.SenderID = key.GetParticipant()
	if m.SenderID == "" {
		m.SenderID = info.GetParticipant()
	}
	m.Timestamp = int64(info.GetMessageTimestamp())
	m.PushName = info.GetPushName()
	m.Status = int(info.GetStatus())

	msg := info.GetMessage()
	m.Type = classify(msg)

	switch m.Type {
	case TypeText:
		if c := msg.GetConversation(); c != "" {
			m.Text = &c
		} else if ext := msg.GetExtendedTextMessage(); ext != nil {
			if t := ext.GetText(); t != "" {
				m.Text = &t
			}
			if ctx := ext.GetContextInfo(); ctx != nil {
				if ctx.GetStanzaID() != "" || ctx.GetQuotedMessage() != nil {
					m.Quoted = &Quoted{
						MsgID:    ctx.GetStanzaID(),
						SenderID: ctx.GetParticipant(),
						// Only plain-text quotes carry a snippet.
						Text: ctx.GetQuotedMessage().GetConversation(),
					}
				}
				m.Mentions = ctx.GetMentionedJID()
			}
		}
	case TypeImage:
		img := msg.GetImageMessage()
		m.Text = caption(img.GetCaption())
		m.Media = &Media{
			URL:           img.GetURL(),
			DirectPath:    img.GetDirectPath(),
			MediaKey:      b64(img.GetMediaKey()),
			Mimetype:      img.GetMimetype(),
			FileSize:      img.GetFileLength(),
			FileSHA256:    b64(img.GetFileSHA256()),
			FileEncSHA256: b64(img.GetFileEncSHA256()),
			Thumbnail:     b64(img.GetJPEGThumbnail()),
		}
	case TypeVideo:
		vid := msg.GetVideoMessage()
		m.Text = caption(vid.GetCaption())
		m.Media = &Media{
			URL:           vid.GetURL(),
			DirectPath:    vid.GetDirectPath(),
			MediaKey:      b64(vid.GetMediaKey()),
			Mimetype:      vid.GetMimetype(),
			FileSize:      vid.GetFileLength(),
			FileSHA256:    b64(vid.GetFileSHA256()),
			FileEncSHA256: b64(vid.GetFileEncSHA256()),
			Thumbnail:     b64(vid.GetJPEGThumbnail()),
			Duration:      vid.GetSeconds(),
			IsAnimated:    vid.GetGifPlayback(),
		}
	case TypeDocument:
		doc := msg.GetDocumentMessage()
		m.Text = caption(doc.GetCaption())
		m.Media = &Media{
			URL:           doc.GetURL(),
			DirectPath:    doc.GetDirectPath(),
			MediaKey:      b64(doc.GetMediaKey()),
			Mimetype:      doc.GetMimetype(),
			FileSize:      doc.GetFileLength(),
			FileSHA256:    b64(doc.GetFileSHA256()),
			FileEncSHA256: b64(doc.GetFileEncSHA256()),
			Thumbnail:     b64(doc.GetJPEGThumbnail()),
			FileName:      doc.GetFileName(),
		}
	case TypeSticker:
		st := msg.GetStickerMessage()
		m.Media = &Media{
			URL:           st.GetURL(),
			DirectPath:    st.GetDirectPath(),
			MediaKey:      b64(st.GetMediaKey()),
			Mimetype:      st.GetMimetype(),
			FileSize:      st.GetFileLength(),
			FileSHA256:    b64(st.GetFileSHA256()),
			FileEncSHA256: b64(st.GetFileEncSHA256()),
			IsAnimated:    st.GetIsAnimated(),
		}
	case TypeAudio:
		// No caption field exists for audio in the protocol.
		aud := msg.GetAudioMessage()
		m.Media = &Media{
			URL:           aud.GetURL(),
			DirectPath:    aud.GetDirectPath(),
			MediaKey:      b64(aud.GetMediaKey()),
			Mimetype:      aud.GetMimetype(),
			FileSize:      aud.GetFileLength(),
			FileSHA256:    b64(aud.GetFileSHA256()),
			FileEncSHA256: b64(aud.GetFileEncSHA256()),
			Duration:      aud.GetSeconds(),
		}
	case TypeReaction:
		react := msg.GetReactionMessage()
		m.Reaction = &Reaction{
			Emoji:       react.GetText(),
			TargetMsgID: react.GetKey().GetID(),
			From:        react.GetKey().GetParticipant(),
		}
	}

	return m
}

func classify(msg *waE2E.Message) string {
	if msg == nil {
		return TypeUnknown
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return TypeText
	case msg.GetImageMessage() != nil:
		return TypeImage
	case msg.GetVideoMessage() != nil:
		return TypeVideo
	case msg.GetAudioMessage() != nil:
		return TypeAudio
	case msg.GetDocumentMessage() != nil:
		return TypeDocument
	case msg.GetStickerMessage() != nil:
		return TypeSticker
	case msg.GetReactionMessage() != nil:
		return TypeReaction
	case msg.GetContactMessage() != nil:
		return TypeContact
	case msg.GetLocationMessage() != nil:
		return TypeLocation
	case msg.GetProtocolMessage() != nil:
		return TypeProtocol
	default:
		return TypeUnknown
	}
}

func b64(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

func caption(c string) *string {
	if c == "" {
		return nil
	}
	return &c
}
