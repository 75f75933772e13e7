package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileStore keeps subscribers as a JSON array of chat ids. Entries that are not
// integers (or integer strings) are skipped on load.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the file; a missing file is an empty set.
func (f *FileStore) Load(_ context.Context) ([]int64, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subscribers: read %s: %w", f.path, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("subscribers: decode %s: %w", f.path, err)
	}

	chatIDs := make([]int64, 0, len(raw))
	for _, entry := range raw {
		if chatID, ok := parseChatID(entry); ok {
			chatIDs = append(chatIDs, chatID)
		}
	}
	return chatIDs, nil
}

// Save rewrites the file atomically.
func (f *FileStore) Save(_ context.Context, chatIDs []int64) error {
	if chatIDs == nil {
		chatIDs = []int64{}
	}
	data, err := json.MarshalIndent(chatIDs, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("subscribers: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("subscribers: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("subscribers: replace %s: %w", f.path, err)
	}
	return nil
}

func parseChatID(entry json.RawMessage) (int64, bool) {
	var number int64
	if err := json.Unmarshal(entry, &number); err == nil {
		return number, true
	}
	var text string
	if err := json.Unmarshal(entry, &text); err != nil {
		return 0, false
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, false
	}
	return chatID, true
}
