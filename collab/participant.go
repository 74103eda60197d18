package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"chorus/config"
	"chorus/ledger"
	"chorus/llm"
)

// Participant is a resolved, callable participant. It is immutable once built.
type Participant struct {
	ID          string
	DisplayName string
	Description string

	SupportsMemory bool
	Coordinator    bool
	Supervisor     bool

	// Credential is the API key or gateway password; empty means not configured
	Credential string
	Model      string // API model name sent with each request
	MaxTokens  int

	InputRate  float64 // USD per token
	OutputRate float64 // USD per token
	Balance    float64 // starting balance

	DefaultRole        string
	DefaultInstruction string

	Provider llm.Provider

	// withKey builds a one-off provider for a caller-supplied credential
	withKey func(ctx context.Context, apiKey string) (llm.Provider, func() error, error)
}

// Label returns the display name, falling back to the id
func (p *Participant) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// Account returns the ledger account for the participant
func (p *Participant) Account() ledger.Account {
	return ledger.Account{
		ParticipantID: p.ID,
		InputRate:     p.InputRate,
		OutputRate:    p.OutputRate,
		Balance:       p.Balance,
	}
}

// ProviderOptions tunes provider construction
type ProviderOptions struct {
	Timeout  time.Duration // gateway HTTP timeout
	RetryMax int           // gateway retries
	Logger   hclog.Logger
}

// Roster is the set of configured participants in configuration order
type Roster struct {
	Participants []*Participant
	byID         map[string]*Participant
	closers      []func() error
}

// NewRoster resolves every configured participant and builds its provider.
// Participants without a credential get no provider; calls to them fail with
// ProviderNotConfigured instead of failing the whole roster.
func NewRoster(ctx context.Context, cfg *config.Config, opts ProviderOptions) (*Roster, error) {
	r := &Roster{byID: make(map[string]*Participant, len(cfg.Participants))}
	for i := range cfg.Participants {
		pc := cfg.Participants[i]
		p, closer, err := resolveParticipant(ctx, pc, cfg.Models, opts)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("participant '%s': %w", pc.Name, err)
		}
		if closer != nil {
			r.closers = append(r.closers, closer)
		}
		r.Participants = append(r.Participants, p)
		r.byID[p.ID] = p
	}
	return r, nil
}

// NewStaticRoster wraps already-built participants
func NewStaticRoster(participants ...*Participant) *Roster {
	r := &Roster{byID: make(map[string]*Participant, len(participants))}
	for _, p := range participants {
		r.Participants = append(r.Participants, p)
		r.byID[p.ID] = p
	}
	return r
}

// Get returns the participant with the given id
func (r *Roster) Get(id string) (*Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// IDs returns participant ids in configuration order
func (r *Roster) IDs() []string {
	ids := make([]string, len(r.Participants))
	for i, p := range r.Participants {
		ids[i] = p.ID
	}
	return ids
}

// Accounts returns a ledger account for every participant
func (r *Roster) Accounts() []ledger.Account {
	accounts := make([]ledger.Account, len(r.Participants))
	for i, p := range r.Participants {
		accounts[i] = p.Account()
	}
	return accounts
}

// Close releases provider resources
func (r *Roster) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	return firstErr
}

func resolveParticipant(ctx context.Context, pc config.Participant, models []config.Model, opts ProviderOptions) (*Participant, func() error, error) {
	pricing := pc.ResolvePricing(models)
	in, out := pricing.PerToken()

	p := &Participant{
		ID:                 pc.Name,
		DisplayName:        pc.Label(),
		Description:        pc.Description,
		SupportsMemory:     pc.SupportsMemory,
		Coordinator:        pc.Coordinator,
		Supervisor:         pc.Supervisor,
		Credential:         pc.Credential(models),
		MaxTokens:          pc.MaxTokens,
		InputRate:          in,
		OutputRate:         out,
		Balance:            pc.StartingBalance(),
		DefaultRole:        pc.DefaultRole,
		DefaultInstruction: pc.DefaultInstruction,
	}

	if pc.IsGateway() {
		p.Model = pc.GatewayModel
		if p.Credential == "" {
			return p, nil, nil
		}
		p.Provider = llm.NewGatewayProvider(llm.GatewayOptions{
			Endpoint:       pc.Endpoint,
			AccessPassword: p.Credential,
			APIKey:         pc.APIKey,
			RetryMax:       opts.RetryMax,
			Timeout:        opts.Timeout,
			Logger:         opts.Logger,
		})
		return p, nil, nil
	}

	modelConfig, apiModel, err := config.ResolveModelRef(pc.Model, models)
	if err != nil {
		return nil, nil, err
	}
	p.Model = apiModel
	p.withKey = func(ctx context.Context, apiKey string) (llm.Provider, func() error, error) {
		return createProvider(ctx, modelConfig.Provider, apiKey)
	}

	if p.Credential == "" {
		return p, nil, nil
	}
	provider, closer, err := createProvider(ctx, modelConfig.Provider, p.Credential)
	if err != nil {
		return nil, nil, err
	}
	p.Provider = provider
	return p, closer, nil
}

// createProvider creates the SDK provider for a model block's provider kind
func createProvider(ctx context.Context, kind config.Provider, apiKey string) (llm.Provider, func() error, error) {
	switch kind {
	case config.ProviderOpenAI:
		return llm.NewOpenAIProvider(apiKey), nil, nil
	case config.ProviderAnthropic:
		return llm.NewAnthropicProvider(apiKey), nil, nil
	case config.ProviderGemini:
		provider, err := llm.NewGeminiProvider(ctx, apiKey)
		if err != nil {
			return nil, nil, err
		}
		return provider, provider.Close, nil // Gemini provider needs to be closed
	default:
		return nil, nil, fmt.Errorf("unknown provider: %s", kind)
	}
}
