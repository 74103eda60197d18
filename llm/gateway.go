package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
)

// AccessHeader carries the shared access password for gateway endpoints
const AccessHeader = "X-Access-Password"

// GatewayRequest is the JSON body accepted by a participant chat endpoint
type GatewayRequest struct {
	Message      string    `json:"message"`
	Conversation []Message `json:"conversation,omitempty"`
	APIKey       string    `json:"apiKey,omitempty"`
}

// GatewayUsage is the usage block of a gateway response
type GatewayUsage struct {
	InputTokens      int     `json:"inputTokens"`
	OutputTokens     int     `json:"outputTokens"`
	Cost             float64 `json:"cost"`
	RemainingBalance float64 `json:"remainingBalance"`
}

// GatewayResponse is the JSON body returned by a participant chat endpoint
type GatewayResponse struct {
	Content string       `json:"content"`
	Usage   GatewayUsage `json:"usage"`
	Model   string       `json:"model"`
}

// GatewayError is the JSON error body returned alongside non-2xx statuses
type GatewayError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// GatewayOptions configures a GatewayProvider
type GatewayOptions struct {
	Endpoint       string
	AccessPassword string
	APIKey         string
	RetryMax       int
	Timeout        time.Duration
	Logger         hclog.Logger
}

// GatewayProvider calls a participant through its HTTP chat endpoint. System
// prompts are folded into the message text because the endpoint carries only a
// message and a conversation.
type GatewayProvider struct {
	endpoint string
	password string
	apiKey   string
	client   *retryablehttp.Client
}

func NewGatewayProvider(opts GatewayOptions) *GatewayProvider {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 4 * time.Second
	// Keep the final response so its status code can be classified
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}
	if opts.Logger != nil {
		client.Logger = opts.Logger.Named("gateway")
	} else {
		client.Logger = nil
	}

	return &GatewayProvider{
		endpoint: opts.Endpoint,
		password: opts.AccessPassword,
		apiKey:   opts.APIKey,
		client:   client,
	}
}

func (p *GatewayProvider) newRequest(ctx context.Context, req *ChatRequest, stream bool) (*retryablehttp.Request, error) {
	body := p.buildBody(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode gateway request: %w", err)
	}

	url := p.endpoint
	if stream {
		if strings.Contains(url, "?") {
			url += "&stream=true"
		} else {
			url += "?stream=true"
		}
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.password != "" {
		httpReq.Header.Set(AccessHeader, p.password)
	}
	return httpReq, nil
}

func (p *GatewayProvider) buildBody(req *ChatRequest) GatewayRequest {
	var system []string
	var conversation []Message
	var last string
	for i, m := range req.Messages {
		switch {
		case m.Role == RoleSystem:
			system = append(system, m.Content)
		case i == len(req.Messages)-1 && m.Role == RoleUser:
			last = m.Content
		default:
			conversation = append(conversation, m)
		}
	}
	if len(system) > 0 {
		last = strings.Join(system, "\n\n") + "\n\n" + last
	}

	apiKey := p.apiKey
	if req.APIKey != "" {
		apiKey = req.APIKey
	}
	return GatewayRequest{Message: last, Conversation: conversation, APIKey: apiKey}
}

func (p *GatewayProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	httpReq, err := p.newRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, p.statusError(resp)
	}

	var out GatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &APIError{Provider: "gateway", StatusCode: http.StatusBadGateway, Message: "malformed response body", Err: err}
	}

	return &ChatResponse{
		ID:      uuid.New().String(),
		Content: out.Content,
		Model:   out.Model,
		Usage: Usage{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
		},
	}, nil
}

// ChatStream reads an NDJSON body, one fragment frame per line
func (p *GatewayProvider) ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	httpReq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.transportError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, p.statusError(resp)
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				var frag StreamFrame
				if jerr := json.Unmarshal([]byte(line), &frag); jerr != nil {
					send(ctx, chunks, StreamChunk{Error: fmt.Errorf("decode stream frame: %w", jerr), Done: true})
					return
				}
				if frag.Error != "" {
					send(ctx, chunks, StreamChunk{Error: &APIError{Provider: "gateway", StatusCode: frag.Status, Message: frag.Error}, Done: true})
					return
				}
				if frag.Content != "" && !send(ctx, chunks, StreamChunk{Content: frag.Content}) {
					return
				}
			}
			if err == io.EOF {
				send(ctx, chunks, StreamChunk{Done: true})
				return
			}
			if err != nil {
				send(ctx, chunks, StreamChunk{Error: p.transportError(ctx, err), Done: true})
				return
			}
		}
	}()

	return chunks, nil
}

// StreamFrame is one NDJSON line of a streamed gateway response
type StreamFrame struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Status  int    `json:"status,omitempty"`
}

func (p *GatewayProvider) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ge GatewayError
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &ge) == nil && ge.Error != "" {
		msg = ge.Error
	}
	return &APIError{Provider: "gateway", StatusCode: resp.StatusCode, Message: msg}
}

func (p *GatewayProvider) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("gateway request: %w", ctxErr)
	}
	return fmt.Errorf("gateway request: %w", err)
}
