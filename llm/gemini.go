package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// startChat prepares a chat with system instructions and history, returning the
// chat and the final user message parts.
func (p *GeminiProvider) startChat(req *ChatRequest) (*genai.ChatSession, []genai.Part) {
	model := p.client.GenerativeModel(req.Model)

	if systemContent := p.extractSystemPrompts(req.Messages); systemContent != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemContent))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if len(req.StopSequences) > 0 {
		model.StopSequences = req.StopSequences
	}

	chat := model.StartChat()
	chat.History = p.convertHistory(req.Messages)

	return chat, []genai.Part{genai.Text(p.lastUserMessage(req.Messages))}
}

func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	chat, parts := p.startChat(req)

	resp, err := chat.SendMessage(ctx, parts...)
	if err != nil {
		return nil, normalizeGeminiError(err)
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	out := &ChatResponse{
		ID:           uuid.New().String(),
		Content:      p.extractContent(resp),
		Model:        req.Model,
		FinishReason: resp.Candidates[0].FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func (p *GeminiProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	chat, parts := p.startChat(req)

	iter := chat.SendMessageStream(ctx, parts...)

	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)

		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				send(ctx, chunks, StreamChunk{Done: true})
				return
			}
			if err != nil {
				send(ctx, chunks, StreamChunk{Error: normalizeGeminiError(err), Done: true})
				return
			}

			if content := p.extractContent(resp); content != "" {
				if !send(ctx, chunks, StreamChunk{Content: content}) {
					return
				}
			}
		}
	}()

	return chunks, nil
}

func (p *GeminiProvider) extractSystemPrompts(messages []Message) string {
	var system string
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		}
	}
	return system
}

// convertHistory converts every non-system message except the final user
// message, which is sent separately.
func (p *GeminiProvider) convertHistory(messages []Message) []*genai.Content {
	var nonSystem []Message
	for _, m := range messages {
		if m.Role != RoleSystem {
			nonSystem = append(nonSystem, m)
		}
	}
	if len(nonSystem) > 0 {
		nonSystem = nonSystem[:len(nonSystem)-1]
	}

	var history []*genai.Content
	for _, m := range nonSystem {
		var role string
		switch m.Role {
		case RoleUser:
			role = "user"
		case RoleAssistant:
			role = "model"
		default:
			continue
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	return history
}

func (p *GeminiProvider) lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func (p *GeminiProvider) extractContent(resp *genai.GenerateContentResponse) string {
	var content string
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					content += string(text)
				} else {
					content += fmt.Sprintf("%v", part)
				}
			}
		}
	}
	return content
}

// grpcToHTTP maps the gRPC codes the Gemini client surfaces onto HTTP statuses
var grpcToHTTP = map[codes.Code]int{
	codes.InvalidArgument:   http.StatusBadRequest,
	codes.Unauthenticated:   http.StatusUnauthorized,
	codes.PermissionDenied:  http.StatusForbidden,
	codes.NotFound:          http.StatusNotFound,
	codes.ResourceExhausted: http.StatusTooManyRequests,
	codes.DeadlineExceeded:  http.StatusRequestTimeout,
	codes.Unavailable:       http.StatusServiceUnavailable,
	codes.Internal:          http.StatusInternalServerError,
}

func normalizeGeminiError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &APIError{Provider: "gemini", StatusCode: gErr.Code, Message: gErr.Message, Err: err}
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		code, known := grpcToHTTP[st.Code()]
		if !known {
			code = http.StatusInternalServerError
		}
		return &APIError{Provider: "gemini", StatusCode: code, Message: st.Message(), Err: err}
	}
	return err
}
