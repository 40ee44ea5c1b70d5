package postgres

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rohanmalviya/simian/internal/core/storage"
)

// Cursors are base64-wrapped JSON keyset positions. They are opaque to
// callers and only valid against the ordering that produced them.

type msuCursor struct {
	User  string    `json:"u"`
	Mtime time.Time `json:"m"`
	Seq   int64     `json:"s"`
}

type installCursor struct {
	ServerDatetime time.Time `json:"d"`
	Seq            int64     `json:"s"`
}

func encodeCursor(v interface{}) (storage.Cursor, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return storage.Cursor(base64.StdEncoding.EncodeToString(data)), nil
}

func decodeCursor(c storage.Cursor, out interface{}) error {
	data, err := base64.StdEncoding.DecodeString(string(c))
	if err != nil {
		return fmt.Errorf("decode cursor: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode cursor: %w", err)
	}
	return nil
}
