package llm

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

const contentPreviewMaxLen = 200

// TurnLogger writes one JSONL record per provider call to a file. It is safe
// for concurrent use by the units of a collaboration round.
type TurnLogger struct {
	mu        sync.Mutex
	file      *os.File
	turnCount int
}

// NewTurnLogger creates a turn logger that writes to the given file path.
func NewTurnLogger(filename string) (*TurnLogger, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &TurnLogger{file: f}, nil
}

// Close closes the underlying file.
func (tl *TurnLogger) Close() {
	if tl.file != nil {
		tl.file.Close()
	}
}

// turnSnapshot is the top-level envelope written per call.
type turnSnapshot struct {
	Turn            int               `json:"turn"`
	Timestamp       string            `json:"timestamp"`
	Participant     string            `json:"participant"`
	Action          string            `json:"action,omitempty"`
	MessageCount    int               `json:"message_count"`
	Messages        []messageSnapshot `json:"messages"`
	ResponsePreview string            `json:"response_preview,omitempty"`
	ResponseLength  int               `json:"response_length"`
	Error           string            `json:"error,omitempty"`
}

// messageSnapshot captures one message without the full payload.
type messageSnapshot struct {
	Index          int    `json:"index"`
	Role           string `json:"role"`
	ContentPreview string `json:"content_preview,omitempty"`
	ContentLength  int    `json:"content_length"`
}

func preview(text string) string {
	r := []rune(text)
	if len(r) > contentPreviewMaxLen {
		return string(r[:contentPreviewMaxLen]) + "..."
	}
	return text
}

// LogTurn snapshots the request messages and the outcome of one call.
func (tl *TurnLogger) LogTurn(participant, action string, messages []Message, response string, callErr error) {
	if tl == nil || tl.file == nil {
		return
	}

	snap := turnSnapshot{
		Timestamp:       time.Now().Format(time.RFC3339Nano),
		Participant:     participant,
		Action:          action,
		MessageCount:    len(messages),
		Messages:        make([]messageSnapshot, len(messages)),
		ResponsePreview: preview(response),
		ResponseLength:  len(response),
	}
	if callErr != nil {
		snap.Error = callErr.Error()
	}

	for i, msg := range messages {
		snap.Messages[i] = messageSnapshot{
			Index:          i,
			Role:           string(msg.Role),
			ContentPreview: preview(msg.Content),
			ContentLength:  len(msg.Content),
		}
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.turnCount++
	snap.Turn = tl.turnCount

	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	tl.file.WriteString(string(data) + "\n")
}
