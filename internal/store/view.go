package store

// ChatsWithMessages reconstructs the nested chats-with-messages view:
// the chatLimit most recent chats, each with its perChat most recent
// messages in ascending timestamp order. LastMessage is the last
// element of the (possibly truncated) window, not necessarily the true
// last message of the chat.
func (db *DB) ChatsWithMessages(chatLimit, perChat int) ([]ChatWithMessages, error) {
	chats, err := db.AllChats(chatLimit)
	if err != nil {
		return nil, err
	}

	view := make([]ChatWithMessages, 0, len(chats))
	for _, c := range chats {
		msgs, err := db.MessagesForChat(c.ID, perChat)
		if err != nil {
			return nil, err
		}
		cwm := ChatWithMessages{Chat: c, Messages: msgs}
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			cwm.LastMessage = &last
		}
		view = append(view, cwm)
	}
	return view, nil
}
