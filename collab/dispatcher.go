package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"chorus/memory"
)

// RoundObserver is notified as dispatch units start and finish. Methods are
// called concurrently from unit goroutines.
type RoundObserver interface {
	UnitStarted(p *Participant, role Role)
	// UnitFinished is called once per recorded outcome and may set its Step
	UnitFinished(o *Outcome)
}

// Dispatcher fans one query out to every participant of a role assignment
type Dispatcher struct {
	adapter      *Adapter
	memory       *memory.Store
	participants []*Participant
	timeout      time.Duration
	logger       hclog.Logger
}

// NewDispatcher creates a dispatcher over participants in configuration order.
// A zero timeout leaves units bounded only by the session context.
func NewDispatcher(adapter *Adapter, mem *memory.Store, participants []*Participant, timeout time.Duration, logger hclog.Logger) *Dispatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if mem == nil {
		mem = memory.New()
	}
	return &Dispatcher{
		adapter:      adapter,
		memory:       mem,
		participants: participants,
		timeout:      timeout,
		logger:       logger.Named("dispatcher"),
	}
}

// RunRound runs one unit per assigned participant and waits for all of them.
// A unit failure becomes a failed Outcome for that participant only. Units
// interrupted by cancellation of ctx record nothing. Outcomes are returned in
// participant configuration order.
func (d *Dispatcher) RunRound(ctx context.Context, roles RoleAssignment, query string, observers ...RoundObserver) []Outcome {
	type slot struct {
		outcome  Outcome
		recorded bool
	}
	slots := make([]slot, len(d.participants))

	var wg conc.WaitGroup
	for i, p := range d.participants {
		role, ok := roles.Roles[p.ID]
		if !ok {
			continue
		}
		wg.Go(func() {
			var pc panics.Catcher
			pc.Try(func() {
				slots[i].outcome, slots[i].recorded = d.runUnit(ctx, p, role, query, observers)
			})
			if r := pc.Recovered(); r != nil {
				d.logger.Error("dispatch unit panicked", "participant", p.ID, "panic", r.Value)
				o := Outcome{ParticipantID: p.ID, DisplayName: p.Label(), Role: role.Title}
				o.fail(&Error{Kind: KindTransport, Participant: p.ID, Message: "unit panicked", Err: r.AsError()})
				if err := d.adapter.Ledger().RecordFailure(p.ID); err != nil {
					d.logger.Error("failed to record failure", "participant", p.ID, "error", err)
				}
				for _, obs := range observers {
					obs.UnitFinished(&o)
				}
				slots[i] = slot{outcome: o, recorded: true}
			}
		})
	}
	wg.Wait()

	outcomes := make([]Outcome, 0, len(slots))
	for _, s := range slots {
		if s.recorded {
			outcomes = append(outcomes, s.outcome)
		}
	}
	return outcomes
}

func (d *Dispatcher) runUnit(ctx context.Context, p *Participant, role Role, query string, observers []RoundObserver) (Outcome, bool) {
	if ctx.Err() != nil {
		return Outcome{}, false
	}
	for _, obs := range observers {
		obs.UnitStarted(p, role)
	}

	unitCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	prompt := role.Instruction + "\n\n" + query
	history := d.memory.Read(p.ID)

	out := d.adapter.Invoke(unitCtx, p, prompt, history)
	out.Role = role.Title

	if !out.Success && out.ErrorKind == KindCancelled {
		d.logger.Debug("unit cancelled", "participant", p.ID)
		return Outcome{}, false
	}
	if !out.Success && out.ErrorKind == KindTimeout && d.timeout > 0 && unitCtx.Err() != nil {
		out.Err.Message = fmt.Sprintf("no response within %s", d.timeout)
		out.Error = out.Err.Error()
	}

	if out.Success && p.SupportsMemory {
		// The outcome stands even if the session is cancelled from here on
		if err := d.memory.Append(context.WithoutCancel(ctx), p.ID, prompt, out.Content); err != nil {
			d.logger.Warn("failed to append memory", "participant", p.ID, "error", err)
		}
	}

	for _, obs := range observers {
		obs.UnitFinished(&out)
	}
	return out, true
}
