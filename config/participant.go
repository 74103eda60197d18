package config

import (
	"fmt"
	"net/url"
)

// DefaultBalance is the starting balance in USD for participants without a balance attribute
const DefaultBalance = 5.00

// Participant is one text-generation service the orchestrator can call.
// Exactly one of Model (a direct SDK provider) or Endpoint (an HTTP gateway) is set.
type Participant struct {
	Name        string `hcl:"name,label"`
	DisplayName string `hcl:"display_name,optional"`
	Description string `hcl:"description,optional"`

	Model    string `hcl:"model,optional"`    // models.<block>.<key>
	Endpoint string `hcl:"endpoint,optional"` // gateway chat URL
	// APIKey overrides the model block's api_key; for gateways it is forwarded as apiKey
	APIKey string `hcl:"api_key,optional"`
	// AccessPassword is sent to gateway endpoints in the access header
	AccessPassword string `hcl:"access_password,optional"`
	GatewayModel   string `hcl:"gateway_model,optional"`

	SupportsMemory bool `hcl:"supports_memory,optional"`
	MemoryWindow   int  `hcl:"memory_window,optional"` // exchanges sent as context (0 = all)
	Coordinator    bool `hcl:"coordinator,optional"`
	Supervisor     bool `hcl:"supervisor,optional"`
	MaxTokens      int  `hcl:"max_tokens,optional"`

	Balance     *float64 `hcl:"balance,optional"`
	InputPer1M  *float64 `hcl:"input_per_1m,optional"`
	OutputPer1M *float64 `hcl:"output_per_1m,optional"`

	DefaultRole        string `hcl:"default_role,optional"`
	DefaultInstruction string `hcl:"default_instruction,optional"`
}

// IsGateway reports whether the participant is reached through an HTTP gateway
func (p *Participant) IsGateway() bool {
	return p.Endpoint != ""
}

// Label returns the display name, falling back to the block name
func (p *Participant) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// StartingBalance returns the configured balance or DefaultBalance
func (p *Participant) StartingBalance() float64 {
	if p.Balance == nil {
		return DefaultBalance
	}
	return *p.Balance
}

// Validate checks the participant against the declared model blocks
func (p *Participant) Validate(models []Model) error {
	switch {
	case p.Model == "" && p.Endpoint == "":
		return fmt.Errorf("one of model or endpoint is required")
	case p.Model != "" && p.Endpoint != "":
		return fmt.Errorf("model and endpoint are mutually exclusive")
	}

	if p.IsGateway() {
		u, err := url.Parse(p.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid endpoint '%s'", p.Endpoint)
		}
	} else if _, _, err := ResolveModelRef(p.Model, models); err != nil {
		return err
	}

	if p.Balance != nil && *p.Balance < 0 {
		return fmt.Errorf("balance cannot be negative")
	}
	if (p.InputPer1M != nil && *p.InputPer1M < 0) || (p.OutputPer1M != nil && *p.OutputPer1M < 0) {
		return fmt.Errorf("pricing cannot be negative")
	}
	if p.MemoryWindow < 0 {
		return fmt.Errorf("memory_window cannot be negative")
	}
	return nil
}

// ResolvePricing returns the participant's pricing: explicit rates win over the
// model pricing table; unknown models price at zero.
func (p *Participant) ResolvePricing(models []Model) ModelPricing {
	var pricing ModelPricing
	if !p.IsGateway() {
		if _, apiModel, err := ResolveModelRef(p.Model, models); err == nil {
			pricing, _ = LookupPricing(apiModel)
		}
	}
	if p.InputPer1M != nil {
		pricing.InputPer1M = *p.InputPer1M
	}
	if p.OutputPer1M != nil {
		pricing.OutputPer1M = *p.OutputPer1M
	}
	return pricing
}

// Credential returns the credential used to reach the participant. For SDK
// participants it is the API key (participant override, then model block); for
// gateways it is the access password.
func (p *Participant) Credential(models []Model) string {
	if p.IsGateway() {
		return p.AccessPassword
	}
	if p.APIKey != "" {
		return p.APIKey
	}
	if m, _, err := ResolveModelRef(p.Model, models); err == nil {
		return m.APIKey
	}
	return ""
}
