package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/wppsync/internal/export"
	"github.com/matheus3301/wppsync/internal/status"
	"github.com/matheus3301/wppsync/internal/store"
	"go.uber.org/zap"
)

// ServerConfig bounds the query layer defaults.
type ServerConfig struct {
	ChatLimit    int
	MessageLimit int
	MaxBodyBytes int64
}

// Server exposes the read model over a local JSON API. It is a
// read-mostly surface: the only mutation is queueing an outgoing
// message, which the sender loop picks up asynchronously.
type Server struct {
	db       *store.DB
	machine  *status.Machine
	exporter *export.Exporter
	cfg      ServerConfig
	logger   *zap.Logger
}

// NewServer creates an API server over the given store.
func NewServer(db *store.DB, machine *status.Machine, exporter *export.Exporter, cfg ServerConfig, logger *zap.Logger) *Server {
	if cfg.ChatLimit <= 0 {
		cfg.ChatLimit = 25
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 100
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{db: db, machine: machine, exporter: exporter, cfg: cfg, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodGet:
		s.handleStatus(w, r)
	case len(parts) == 2 && parts[1] == "chats" && r.Method == http.MethodGet:
		s.handleChats(w, r)
	case len(parts) == 3 && parts[1] == "chats" && r.Method == http.MethodGet:
		s.handleChat(w, r, parts[2])
	case len(parts) == 4 && parts[1] == "chats" && parts[3] == "messages" && r.Method == http.MethodGet:
		s.handleMessages(w, r, parts[2])
	case len(parts) == 2 && parts[1] == "contacts" && r.Method == http.MethodGet:
		s.handleContacts(w, r)
	case len(parts) == 2 && parts[1] == "overview" && r.Method == http.MethodGet:
		s.handleOverview(w, r)
	case len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodPost:
		s.handleSend(w, r)
	case len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodPost:
		s.handleExport(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	chats, _ := s.db.ChatCount()
	contacts, _ := s.db.ContactCount()
	messages, _ := s.db.MessageCount()
	syncType, _ := s.db.GetCheckpoint("history_sync_type")

	writeJSON(w, http.StatusOK, map[string]any{
		"state":           s.machine.Current(),
		"chatCount":       chats,
		"contactCount":    contacts,
		"messageCount":    messages,
		"lastHistorySync": syncType,
	})
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", s.cfg.ChatLimit)
	chats, err := s.db.AllChats(limit)
	if err != nil {
		s.internalError(w, "load chats", err)
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, id string) {
	chat, err := s.db.GetChat(id)
	if err != nil {
		s.internalError(w, "load chat", err)
		return
	}
	if chat == nil {
		writeError(w, http.StatusNotFound, "not_found", "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, chatID string) {
	chat, err := s.db.GetChat(chatID)
	if err != nil {
		s.internalError(w, "load chat", err)
		return
	}
	if chat == nil {
		writeError(w, http.StatusNotFound, "not_found", "chat not found")
		return
	}

	limit := queryInt(r, "limit", s.cfg.MessageLimit)
	msgs, err := s.db.MessagesForChat(chatID, limit)
	if err != nil {
		s.internalError(w, "load messages", err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chatId": chatID, "messages": msgs})
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.db.AllContacts()
	if err != nil {
		s.internalError(w, "load contacts", err)
		return
	}
	if contacts == nil {
		contacts = []store.Contact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	chatLimit := queryInt(r, "chats", s.cfg.ChatLimit)
	perChat := queryInt(r, "messages", s.cfg.MessageLimit)
	view, err := s.db.ChatsWithMessages(chatLimit, perChat)
	if err != nil {
		s.internalError(w, "load overview", err)
		return
	}
	if view == nil {
		view = []store.ChatWithMessages{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": view})
}

type sendRequest struct {
	ChatID string `json:"chatId"`
	Body   string `json:"body"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "cannot read body")
		return
	}
	var req sendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.ChatID == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "chatId and body are required")
		return
	}

	clientMsgID := uuid.NewString()
	if err := s.db.QueueOutbox(clientMsgID, req.ChatID, req.Body); err != nil {
		s.internalError(w, "queue message", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"clientMsgId": clientMsgID,
		"status":      "queued",
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "export is not configured")
		return
	}

	var path string
	var err error
	switch format := r.URL.Query().Get("format"); format {
	case "", "chats":
		path, err = s.exporter.Nested(queryInt(r, "chats", 0), queryInt(r, "messages", 0))
	case "flat":
		path, err = s.exporter.Flat()
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "unknown export format")
		return
	}
	if err != nil {
		s.internalError(w, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("api request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", op+" failed")
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}
