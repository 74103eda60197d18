package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"chorus/collab/internal/prompts"
)

// ConsolidationSections are the headings a consolidated answer is asked to contain
var ConsolidationSections = prompts.ConsolidationSections

// Consolidator asks the supervisor to synthesize successful outcomes
type Consolidator struct {
	adapter    *Adapter
	supervisor *Participant
	timeout    time.Duration
	logger     hclog.Logger
}

// NewConsolidator creates a consolidator for supervisor
func NewConsolidator(adapter *Adapter, supervisor *Participant, timeout time.Duration, logger hclog.Logger) *Consolidator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Consolidator{adapter: adapter, supervisor: supervisor, timeout: timeout, logger: logger.Named("consolidator")}
}

// Supervisor returns the synthesizing participant
func (c *Consolidator) Supervisor() *Participant {
	return c.supervisor
}

// Consolidate returns the supervisor's raw response. It requires at least two
// successful outcomes and never reads or writes conversation memory.
func (c *Consolidator) Consolidate(ctx context.Context, query string, outcomes []Outcome) (string, error) {
	contributions := contributionsOf(outcomes)
	if len(contributions) < 2 {
		return "", &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("consolidation needs at least 2 successful outcomes, got %d", len(contributions))}
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := c.adapter.Invoke(callCtx, c.supervisor, prompts.GetConsolidatorPrompt(query, contributions), nil)
	if !out.Success {
		return "", out.Err
	}
	c.logger.Debug("consolidated", "supervisor", c.supervisor.ID, "contributors", len(contributions), "cost", out.Usage.Cost)
	return out.Content, nil
}

// DegradedResult concatenates successful outputs under their role headings.
// It stands in for the synthesis when the supervisor call fails.
func DegradedResult(outcomes []Outcome) string {
	return prompts.FormatContributions(contributionsOf(outcomes))
}

func contributionsOf(outcomes []Outcome) []prompts.Contribution {
	var contributions []prompts.Contribution
	for _, o := range outcomes {
		if !o.Success {
			continue
		}
		role := o.Role
		if role == "" {
			role = "Contributor"
		}
		contributions = append(contributions, prompts.Contribution{
			Role:        role,
			DisplayName: o.DisplayName,
			Content:     o.Content,
		})
	}
	return contributions
}
