package llm

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a conversation message
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewTextMessage creates a simple text-only message
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

type StreamChunk struct {
	Content string
	Done    bool
	Error   error
	Usage   *Usage // Only populated on final chunk (Done=true)
}

type ChatRequest struct {
	Model         string
	Messages      []Message
	MaxTokens     int
	Temperature   float64
	StopSequences []string
	// APIKey overrides the provider's configured credential for one call.
	// Only the gateway provider honours it.
	APIKey string
}

type ChatResponse struct {
	ID           string
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int

	// Cache-related fields (provider-specific, may be zero if not supported)
	CacheCreationInputTokens int // Anthropic: tokens used to create new cache entry
	CacheReadInputTokens     int // Anthropic: tokens read from existing cache
	CachedTokens             int // OpenAI: tokens served from cache (prompt_tokens_details.cached_tokens)
}

type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
}

// BuildMessages assembles the message list for one call: system prompts,
// prior (user, assistant) turns, then the new user message.
func BuildMessages(systemPrompts []string, history []Message, userMessage string) []Message {
	msgs := make([]Message, 0, len(systemPrompts)+len(history)+1)
	for _, sp := range systemPrompts {
		msgs = append(msgs, Message{Role: RoleSystem, Content: sp})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, NewTextMessage(RoleUser, userMessage))
	return msgs
}
