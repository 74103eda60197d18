package cmd

import (
	"context"
	"fmt"
	"time"

	"chorus/collab"
	"chorus/config"
	"chorus/ledger"
	"chorus/llm"
	"chorus/memory"
	"chorus/store"

	"github.com/hashicorp/go-hclog"
)

// runtime is everything a command needs to talk to participants
type runtime struct {
	cfg        *config.Config
	stores     *store.Bundle
	roster     *collab.Roster
	ledger     *ledger.Ledger
	memory     *memory.Store
	controller *collab.Controller
	turns      *llm.TurnLogger
	logger     hclog.Logger
}

type runtimeOptions struct {
	configPath string
	debugFile  string // JSONL transcript of every participant call
}

// openRuntime loads the config, opens storage, restores ledger and memory
// state, and builds the collaboration controller.
func openRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	logger := newLogger()

	cfg, err := config.LoadAndValidate(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	rt.stores, err = store.NewBundle(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	timeout := time.Duration(cfg.Collaboration.ParticipantTimeout) * time.Second
	rt.roster, err = collab.NewRoster(ctx, cfg, collab.ProviderOptions{
		Timeout: timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	rt.ledger = ledger.New(rt.roster.Accounts()...)
	records, err := rt.stores.Ledger.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	rt.ledger.Restore(collab.LedgerEntries(records))

	rt.memory = memory.New(memory.WithBackend(rt.stores.Exchanges), memory.WithLogger(logger))
	for _, p := range cfg.Participants {
		if p.SupportsMemory {
			rt.memory.Enable(p.Name, p.MemoryWindow)
		}
	}
	if err := rt.memory.Load(ctx, rt.roster.IDs()); err != nil {
		return nil, fmt.Errorf("loading memory: %w", err)
	}

	adapterOpts := []collab.AdapterOption{collab.WithAdapterLogger(logger)}
	if opts.debugFile != "" {
		rt.turns, err = llm.NewTurnLogger(opts.debugFile)
		if err != nil {
			return nil, fmt.Errorf("opening debug file: %w", err)
		}
		adapterOpts = append(adapterOpts, collab.WithTurnLogger(rt.turns))
	}

	rt.controller, err = collab.NewController(collab.Options{
		Roster:             rt.roster,
		Coordinator:        cfg.Collaboration.Coordinator,
		Supervisor:         cfg.Collaboration.Supervisor,
		Ledger:             rt.ledger,
		Memory:             rt.memory,
		Adapter:            collab.NewAdapter(rt.ledger, adapterOpts...),
		MinQueryLength:     cfg.Collaboration.MinQueryLength,
		ParticipantTimeout: timeout,
		Sessions:           rt.stores.Sessions,
		Ledgers:            rt.stores.Ledger,
		Events:             rt.stores.Events,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return rt, nil
}

// saveLedger persists balances after calls made outside a session
func (rt *runtime) saveLedger(ctx context.Context) {
	if err := rt.stores.Ledger.SaveLedger(ctx, collab.LedgerRecords(rt.ledger.Snapshot())); err != nil {
		rt.logger.Warn("failed to save ledger", "error", err)
	}
}

func (rt *runtime) Close() {
	if rt.turns != nil {
		rt.turns.Close()
	}
	if rt.roster != nil {
		if err := rt.roster.Close(); err != nil {
			rt.logger.Warn("failed to close providers", "error", err)
		}
	}
	if rt.stores != nil {
		if err := rt.stores.Close(); err != nil {
			rt.logger.Warn("failed to close store", "error", err)
		}
	}
}
