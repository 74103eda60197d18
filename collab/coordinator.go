package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"chorus/collab/internal/prompts"
)

// Role is one participant's assignment for a session
type Role struct {
	Title       string `json:"role"`
	Instruction string `json:"instruction"`
}

// RoleAssignment maps every dispatched participant to its role
type RoleAssignment struct {
	QueryType string          `json:"queryType,omitempty"`
	Analysis  string          `json:"analysis,omitempty"`
	Roles     map[string]Role `json:"roles"`
	// Fallback is set when the static table replaced the coordinator's answer
	Fallback       bool   `json:"fallback"`
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// fallbackRoles is assigned by position when neither the coordinator nor the
// participant's configuration provides a role
var fallbackRoles = []Role{
	{Title: "Analyst", Instruction: "Break the question down into its core parts and explain each one clearly and accurately."},
	{Title: "Critic", Instruction: "Examine the question critically. Point out hidden assumptions, risks, edge cases and common misconceptions."},
	{Title: "Practitioner", Instruction: "Focus on practice. Give concrete examples, real-world applications and actionable recommendations."},
	{Title: "Researcher", Instruction: "Provide background and context. Cite relevant facts, history and supporting evidence."},
	{Title: "Innovator", Instruction: "Explore unconventional angles and alternative approaches others are likely to miss."},
}

// FallbackAssignment returns the static assignment for participants
func FallbackAssignment(participants []*Participant, reason string) RoleAssignment {
	ra := RoleAssignment{
		QueryType:      "general",
		Roles:          make(map[string]Role, len(participants)),
		Fallback:       true,
		FallbackReason: reason,
	}
	for i, p := range participants {
		role := fallbackRoles[i%len(fallbackRoles)]
		if i >= len(fallbackRoles) {
			role.Title = fmt.Sprintf("%s %d", role.Title, i/len(fallbackRoles)+1)
		}
		if p.DefaultRole != "" {
			role.Title = p.DefaultRole
		}
		if p.DefaultInstruction != "" {
			role.Instruction = p.DefaultInstruction
		}
		ra.Roles[p.ID] = role
	}
	return ra
}

// Coordinator asks one participant to assign roles for a query
type Coordinator struct {
	adapter     *Adapter
	participant *Participant
	timeout     time.Duration
	logger      hclog.Logger
}

// NewCoordinator creates a coordinator that consults participant
func NewCoordinator(adapter *Adapter, participant *Participant, timeout time.Duration, logger hclog.Logger) *Coordinator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Coordinator{adapter: adapter, participant: participant, timeout: timeout, logger: logger.Named("coordinator")}
}

// Participant returns the coordinating participant
func (c *Coordinator) Participant() *Participant {
	return c.participant
}

// AssignRoles never fails: any call or parse failure yields the static
// fallback assignment. The call is charged to the coordinator's ledger entry.
func (c *Coordinator) AssignRoles(ctx context.Context, query string, participants []*Participant) RoleAssignment {
	infos := make([]prompts.ParticipantInfo, len(participants))
	ids := make([]string, len(participants))
	for i, p := range participants {
		infos[i] = prompts.ParticipantInfo{ID: p.ID, DisplayName: p.Label(), Description: p.Description}
		ids[i] = p.ID
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := c.adapter.Invoke(callCtx, c.participant, prompts.GetCoordinatorPrompt(query, infos), nil)
	if !out.Success {
		c.logger.Warn("coordinator call failed, using fallback roles", "participant", c.participant.ID, "kind", out.ErrorKind, "error", out.Error)
		return FallbackAssignment(participants, "coordinator call failed: "+string(out.ErrorKind))
	}

	ra, err := ParseRoleAssignment(out.Content, ids)
	if err != nil {
		c.logger.Warn("coordinator response rejected, using fallback roles", "participant", c.participant.ID, "error", err)
		return FallbackAssignment(participants, err.Error())
	}
	return ra
}

// ParseRoleAssignment strictly decodes a coordinator response. One surrounding
// markdown code fence is accepted; anything else that is not exactly the
// expected object, or that misses a participant, is a CoordinatorParseError.
func ParseRoleAssignment(text string, participantIDs []string) (RoleAssignment, error) {
	body, err := stripFence(strings.TrimSpace(text))
	if err != nil {
		return RoleAssignment{}, err
	}

	var raw struct {
		QueryType string          `json:"queryType"`
		Analysis  string          `json:"analysis"`
		Roles     map[string]Role `json:"roles"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return RoleAssignment{}, parseError("decode: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return RoleAssignment{}, parseError("trailing data after object")
	}
	if raw.Roles == nil {
		return RoleAssignment{}, parseError("missing roles")
	}

	want := make(map[string]bool, len(participantIDs))
	for _, id := range participantIDs {
		want[id] = true
		role, ok := raw.Roles[id]
		if !ok {
			return RoleAssignment{}, parseError("no role for participant '%s'", id)
		}
		if strings.TrimSpace(role.Title) == "" || strings.TrimSpace(role.Instruction) == "" {
			return RoleAssignment{}, parseError("empty role or instruction for participant '%s'", id)
		}
	}
	for id := range raw.Roles {
		if !want[id] {
			return RoleAssignment{}, parseError("role for unknown participant '%s'", id)
		}
	}

	return RoleAssignment{
		QueryType: raw.QueryType,
		Analysis:  raw.Analysis,
		Roles:     raw.Roles,
	}, nil
}

// stripFence removes a single ``` or ```json fence wrapping the whole text
func stripFence(text string) (string, error) {
	if !strings.HasPrefix(text, "```") {
		return text, nil
	}
	nl := strings.IndexByte(text, '\n')
	if nl < 0 {
		return "", parseError("unterminated code fence")
	}
	if lang := strings.TrimSpace(text[3:nl]); lang != "" && lang != "json" {
		return "", parseError("unexpected code fence language '%s'", lang)
	}
	inner := strings.TrimSpace(text[nl+1:])
	if !strings.HasSuffix(inner, "```") {
		return "", parseError("unterminated code fence")
	}
	return strings.TrimSpace(strings.TrimSuffix(inner, "```")), nil
}

func parseError(format string, args ...any) *Error {
	return &Error{Kind: KindCoordinatorParse, Message: fmt.Sprintf(format, args...)}
}
