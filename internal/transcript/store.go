// Package transcript persists a finished conversation as one JSON file.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mcpchat/internal/chat"
)

type record struct {
	Role       chat.Role    `json:"role"`
	Content    *string      `json:"content"`
	ToolCalls  []toolRecord `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
}

type toolRecord struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function functionRecord `json:"function"`
}

type functionRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Store struct {
	dir string
	now func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now when naming files.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileName derives a file name from t: the UTC ISO-8601 instant with ':'
// and '.' replaced by '-'.
func FileName(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(stamp) + ".json"
}

// Save writes messages to a new file in the store directory and returns its
// path.
func (s *Store) Save(messages []chat.Message) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	b, err := json.MarshalIndent(toRecords(messages), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	path := filepath.Join(s.dir, FileName(s.now()))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

func toRecords(messages []chat.Message) []record {
	out := make([]record, 0, len(messages))
	for _, m := range messages {
		r := record{
			Role:       m.Role,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		}
		// Assistant messages that only request tools carry no content.
		if !(m.Role == chat.RoleAssistant && m.Content == "" && len(m.ToolCalls) > 0) {
			content := m.Content
			r.Content = &content
		}
		for _, tc := range m.ToolCalls {
			r.ToolCalls = append(r.ToolCalls, toolRecord{
				ID:       tc.ID,
				Type:     "function",
				Function: functionRecord{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, r)
	}
	return out
}
