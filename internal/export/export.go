package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wppsync/internal/store"
	"go.uber.org/zap"
)

// Document is a flat export: every table dumped side by side. Consumers
// join on ids themselves.
type Document struct {
	ExportID    string          `json:"exportId"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Session     string          `json:"session"`
	Chats       []store.Chat    `json:"chats"`
	Contacts    []store.Contact `json:"contacts"`
	Messages    []store.Message `json:"messages"`
}

// NestedDocument is the conversation-shaped export: chats carry their
// recent message window inline.
type NestedDocument struct {
	ExportID    string                   `json:"exportId"`
	GeneratedAt time.Time                `json:"generatedAt"`
	Session     string                   `json:"session"`
	Chats       []store.ChatWithMessages `json:"chats"`
	Contacts    []store.Contact          `json:"contacts"`
}

// Exporter writes JSON snapshots of the store to disk.
type Exporter struct {
	db      *store.DB
	dir     string
	session string
	logger  *zap.Logger
}

// NewExporter creates an exporter writing into dir.
func NewExporter(db *store.DB, dir, session string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{db: db, dir: dir, session: session, logger: logger}
}

// Flat dumps all chats, contacts and messages into one file and returns
// its path.
func (e *Exporter) Flat() (string, error) {
	chats, err := e.db.AllChats(0)
	if err != nil {
		return "", fmt.Errorf("load chats: %w", err)
	}
	contacts, err := e.db.AllContacts()
	if err != nil {
		return "", fmt.Errorf("load contacts: %w", err)
	}
	messages, err := e.db.AllMessages()
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}

	doc := Document{
		ExportID:    uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Session:     e.session,
		Chats:       chats,
		Contacts:    contacts,
		Messages:    messages,
	}
	return e.write("flat", doc)
}

// Nested writes the conversation-shaped export: up to chatLimit chats,
// each with its last perChat messages.
func (e *Exporter) Nested(chatLimit, perChat int) (string, error) {
	chats, err := e.db.ChatsWithMessages(chatLimit, perChat)
	if err != nil {
		return "", fmt.Errorf("load chat view: %w", err)
	}
	contacts, err := e.db.AllContacts()
	if err != nil {
		return "", fmt.Errorf("load contacts: %w", err)
	}

	doc := NestedDocument{
		ExportID:    uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Session:     e.session,
		Chats:       chats,
		Contacts:    contacts,
	}
	return e.write("chats", doc)
}

func (e *Exporter) write(kind string, doc any) (string, error) {
	if err := os.MkdirAll(e.dir, 0700); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	name := fmt.Sprintf("wppsync-%s-%s.json", kind, time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(e.dir, name)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}

	e.logger.Info("export written", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}
