package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wppsync/internal/config"
	"github.com/matheus3301/wppsync/internal/export"
	"github.com/matheus3301/wppsync/internal/session"
	"github.com/matheus3301/wppsync/internal/store"
)

// wppsyncctl reads the session database directly, so it works whether
// or not the daemon is running. WAL mode keeps concurrent readers safe.
func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		cfg = config.Default()
	}

	db, err := store.Open(session.AppDBPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot open store for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: migrate: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "stats":
		cmdStats(db, *jsonFlag)
	case "chats":
		cmdChats(db, cfg.ChatLimit, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wppsyncctl messages <chat-id>")
			os.Exit(1)
		}
		cmdMessages(db, args[1], cfg.MessageLimit, *jsonFlag)
	case "contacts":
		cmdContacts(db, *jsonFlag)
	case "export":
		format := "chats"
		if len(args) >= 2 {
			format = args[1]
		}
		cmdExport(db, cfg, sessionName, format)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wppsyncctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  stats                Show store counts and sync checkpoint")
	fmt.Fprintln(os.Stderr, "  chats                List chats, most recent first")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>   Show recent messages of a chat")
	fmt.Fprintln(os.Stderr, "  contacts             List contacts")
	fmt.Fprintln(os.Stderr, "  export [flat|chats]  Write a JSON export and print its path")
}

func cmdStats(db *store.DB, jsonOut bool) {
	chats, _ := db.ChatCount()
	contacts, _ := db.ContactCount()
	messages, _ := db.MessageCount()
	syncType, _ := db.GetCheckpoint("history_sync_type")

	if jsonOut {
		outputJSON(map[string]any{
			"chatCount":       chats,
			"contactCount":    contacts,
			"messageCount":    messages,
			"lastHistorySync": syncType,
		})
		return
	}
	fmt.Printf("Chats:    %d\n", chats)
	fmt.Printf("Contacts: %d\n", contacts)
	fmt.Printf("Messages: %d\n", messages)
	if syncType != "" {
		fmt.Printf("Last history sync: %s\n", syncType)
	}
}

func cmdChats(db *store.DB, limit int, jsonOut bool) {
	chats, err := db.AllChats(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("No chats found.")
		return
	}
	for _, c := range chats {
		name := "(unnamed)"
		if c.Name != nil {
			name = *c.Name
		}
		marker := " "
		if c.IsGroup {
			marker = "G"
		}
		fmt.Printf("%s %-40s %s\n", marker, name, c.ID)
	}
}

func cmdMessages(db *store.DB, chatID string, limit int, jsonOut bool) {
	msgs, err := db.MessagesForChat(chatID, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages found.")
		return
	}
	for _, m := range msgs {
		who := m.SenderID
		if m.FromMe {
			who = "me"
		}
		body := "[" + m.ContentType + "]"
		if m.Text != nil {
			body = *m.Text
		}
		fmt.Printf("%d %-30s %s\n", m.Timestamp, who, body)
	}
}

func cmdContacts(db *store.DB, jsonOut bool) {
	contacts, err := db.AllContacts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(contacts)
		return
	}
	if len(contacts) == 0 {
		fmt.Println("No contacts found.")
		return
	}
	for _, c := range contacts {
		name := ""
		switch {
		case c.Name != nil:
			name = *c.Name
		case c.NotifyName != nil:
			name = *c.NotifyName
		}
		fmt.Printf("%-30s %s\n", name, c.ID)
	}
}

func cmdExport(db *store.DB, cfg *config.Config, sessionName, format string) {
	dir := cfg.ExportPath
	if dir == "" {
		dir = session.ExportDir(sessionName)
	}
	e := export.NewExporter(db, dir, sessionName, nil)

	var path string
	var err error
	switch format {
	case "flat":
		path, err = e.Flat()
	case "chats":
		path, err = e.Nested(0, 0)
	default:
		fmt.Fprintf(os.Stderr, "unknown export format: %s\n", format)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(path)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
