package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// The optional structured fields of a message (media, quoted, mentions,
// reaction) are stored as JSON text columns. All encoding and decoding
// goes through this file so the columns could later move to a native
// structured type without touching callers.

// EncodeDoc serializes a sub-document for storage. A nil pointer
// encodes as the JSON literal null, matching the read side.
func EncodeDoc(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func decodeDoc(col sql.NullString, out any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), out); err != nil {
		return fmt.Errorf("decode sub-document: %w", err)
	}
	return nil
}

// decodeMessageDocs fills the structured fields of m from raw columns.
// On any parse failure the already-decoded fields are cleared and the
// error returned; the caller keeps the scalar fields.
func decodeMessageDocs(m *Message, media, quoted, mentions, reaction sql.NullString) error {
	err := decodeDoc(media, &m.Media)
	if err == nil {
		err = decodeDoc(quoted, &m.Quoted)
	}
	if err == nil {
		err = decodeDoc(mentions, &m.Mentions)
	}
	if err == nil {
		err = decodeDoc(reaction, &m.Reaction)
	}
	if err != nil {
		m.Media, m.Quoted, m.Mentions, m.Reaction = nil, nil, nil, nil
		return err
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStrPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
