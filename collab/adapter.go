package collab

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"

	"chorus/ledger"
	"chorus/llm"
	"chorus/memory"
)

// Usage is the token and cost accounting of one call
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	Cost         float64 `json:"cost"`
}

// Outcome is the recorded result of one participant call
type Outcome struct {
	ParticipantID string        `json:"participantId"`
	DisplayName   string        `json:"displayName"`
	Role          string        `json:"role,omitempty"`
	Success       bool          `json:"success"`
	Content       string        `json:"content,omitempty"`
	ErrorKind     Kind          `json:"errorKind,omitempty"`
	Error         string        `json:"error,omitempty"`
	Usage         Usage         `json:"usage"`
	Balance       float64       `json:"remainingBalance"`
	Model         string        `json:"model,omitempty"`
	Step          int64         `json:"step"`
	Duration      time.Duration `json:"durationNs"`

	Err *Error `json:"-"`
}

func (o *Outcome) fail(err *Error) {
	o.Success = false
	o.Err = err
	o.ErrorKind = err.Kind
	o.Error = err.Error()
}

// EstimateTokens approximates a token count as one token per four characters,
// rounded up
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// Call is one request to a participant
type Call struct {
	Prompt  string
	History []llm.Message
	// APIKey replaces the participant's configured credential for this call only
	APIKey string
}

// AdapterOption configures an Adapter
type AdapterOption func(*Adapter)

// WithAdapterLogger sets the adapter logger
func WithAdapterLogger(logger hclog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = logger.Named("adapter") }
}

// WithTurnLogger records every call to a JSONL transcript
func WithTurnLogger(turns *llm.TurnLogger) AdapterOption {
	return func(a *Adapter) { a.turns = turns }
}

// Adapter performs single participant calls: balance precheck, provider
// request, token estimation, and ledger accounting.
type Adapter struct {
	ledger *ledger.Ledger
	logger hclog.Logger
	turns  *llm.TurnLogger
}

// NewAdapter creates an adapter charging calls to l
func NewAdapter(l *ledger.Ledger, opts ...AdapterOption) *Adapter {
	a := &Adapter{ledger: l, logger: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ledger returns the ledger the adapter charges
func (a *Adapter) Ledger() *ledger.Ledger {
	return a.ledger
}

// Invoke sends prompt to the participant with its prior exchanges as context
// and waits for the full response.
func (a *Adapter) Invoke(ctx context.Context, p *Participant, prompt string, history []memory.Exchange) Outcome {
	return a.Do(ctx, p, Call{Prompt: prompt, History: memory.Messages(history)})
}

// Do performs a buffered call. Failures are reported in the returned Outcome;
// a cancelled call leaves the ledger untouched.
func (a *Adapter) Do(ctx context.Context, p *Participant, call Call) Outcome {
	start := time.Now()
	out := Outcome{ParticipantID: p.ID, DisplayName: p.Label(), Model: p.Model}

	provider, release, cerr := a.prepare(ctx, p, call)
	if cerr != nil {
		a.finishFailure(p, &out, cerr, start)
		return out
	}
	defer release()

	req := a.request(p, call)
	resp, err := provider.Chat(ctx, req)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		a.turns.LogTurn(p.ID, "chat", req.Messages, "", err)
		a.finishFailure(p, &out, classify(p.ID, err), start)
		return out
	}
	a.turns.LogTurn(p.ID, "chat", req.Messages, resp.Content, nil)

	if resp.Model != "" {
		out.Model = resp.Model
	}
	out.Content = resp.Content
	a.finishSuccess(p, &out, call.Prompt, resp.Content, start)
	return out
}

// Stream performs a streaming call. Precheck and connection failures are
// returned as *Error; failures after the stream opens surface through the
// fragment sequence's result. Usage is recorded when the sequence ends.
func (a *Adapter) Stream(ctx context.Context, p *Participant, call Call) (*Stream, error) {
	start := time.Now()
	out := Outcome{ParticipantID: p.ID, DisplayName: p.Label(), Model: p.Model}

	provider, release, cerr := a.prepare(ctx, p, call)
	if cerr != nil {
		a.finishFailure(p, &out, cerr, start)
		return nil, cerr
	}

	streamCtx, cancel := context.WithCancel(ctx)
	req := a.request(p, call)
	chunks, err := provider.ChatStream(streamCtx, req)
	if err != nil {
		cancel()
		release()
		a.turns.LogTurn(p.ID, "stream", req.Messages, "", err)
		ce := classify(p.ID, err)
		a.finishFailure(p, &out, ce, start)
		return nil, ce
	}

	s := &Stream{}
	s.Fragments = llm.NewFragments(chunks, func(res llm.StreamResult) {
		defer release()
		defer cancel()
		a.turns.LogTurn(p.ID, "stream", req.Messages, res.Text, res.Err)

		s.outcome = out
		switch {
		case res.Err != nil:
			a.finishFailure(p, &s.outcome, classify(p.ID, res.Err), start)
		case strings.TrimSpace(res.Text) == "":
			a.finishFailure(p, &s.outcome, classify(p.ID, llm.ErrEmptyResponse), start)
		default:
			s.outcome.Content = res.Text
			a.finishSuccess(p, &s.outcome, call.Prompt, res.Text, start)
		}
	})
	return s, nil
}

// Stream is a lazy, single-use sequence of response fragments
type Stream struct {
	*llm.Fragments
	outcome Outcome
}

// Outcome returns the accounting for the finished stream. It is only
// meaningful after the fragment sequence has been consumed.
func (s *Stream) Outcome() Outcome {
	return s.outcome
}

// prepare checks credential and balance, then picks the provider for the call
func (a *Adapter) prepare(ctx context.Context, p *Participant, call Call) (llm.Provider, func(), *Error) {
	noop := func() {}
	if err := ctx.Err(); err != nil {
		return nil, noop, classify(p.ID, err)
	}

	if p.Credential == "" && call.APIKey == "" {
		return nil, noop, &Error{Kind: KindProviderNotConfigured, Participant: p.ID, Message: "no credential configured"}
	}

	projected, err := a.ledger.Cost(p.ID, EstimateTokens(call.Prompt), 0)
	if err != nil {
		return nil, noop, &Error{Kind: KindInvalidRequest, Participant: p.ID, Err: err}
	}
	if !a.ledger.CheckBalance(p.ID, projected) {
		return nil, noop, &Error{Kind: KindInsufficientBalance, Participant: p.ID, Message: "balance does not cover the request"}
	}

	if call.APIKey != "" && p.withKey != nil {
		provider, closer, err := p.withKey(ctx, call.APIKey)
		if err != nil {
			return nil, noop, &Error{Kind: KindProviderNotConfigured, Participant: p.ID, Err: err}
		}
		release := noop
		if closer != nil {
			release = func() { closer() }
		}
		return provider, release, nil
	}

	if p.Provider == nil {
		return nil, noop, &Error{Kind: KindProviderNotConfigured, Participant: p.ID, Message: "no provider available"}
	}
	return p.Provider, noop, nil
}

func (a *Adapter) request(p *Participant, call Call) *llm.ChatRequest {
	return &llm.ChatRequest{
		Model:     p.Model,
		Messages:  llm.BuildMessages(nil, call.History, call.Prompt),
		MaxTokens: p.MaxTokens,
		APIKey:    call.APIKey,
	}
}

func (a *Adapter) finishSuccess(p *Participant, out *Outcome, prompt, response string, start time.Time) {
	out.Success = true
	out.Duration = time.Since(start)

	delta, err := a.ledger.RecordUsage(p.ID, EstimateTokens(prompt), EstimateTokens(response))
	if err != nil {
		a.logger.Error("failed to record usage", "participant", p.ID, "error", err)
		return
	}
	out.Usage = Usage{InputTokens: delta.InputTokens, OutputTokens: delta.OutputTokens, Cost: delta.Cost}
	out.Balance = delta.NewBalance

	a.logger.Debug("participant call succeeded",
		"participant", p.ID,
		"duration", out.Duration,
		"input_tokens", delta.InputTokens,
		"output_tokens", delta.OutputTokens,
		"cost", delta.Cost,
	)
}

func (a *Adapter) finishFailure(p *Participant, out *Outcome, cerr *Error, start time.Time) {
	out.fail(cerr)
	out.Duration = time.Since(start)

	if entry, err := a.ledger.Entry(p.ID); err == nil {
		out.Balance = entry.Balance
	}
	if cerr.Kind == KindCancelled {
		a.logger.Debug("participant call cancelled", "participant", p.ID)
		return
	}
	if err := a.ledger.RecordFailure(p.ID); err != nil && !errors.Is(err, ledger.ErrUnknownParticipant) {
		a.logger.Error("failed to record failure", "participant", p.ID, "error", err)
	}
	a.logger.Warn("participant call failed", "participant", p.ID, "kind", cerr.Kind, "duration", out.Duration, "error", cerr)
}
