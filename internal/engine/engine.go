// Package engine coordinates every guardian subsystem behind a single
// mutex. Platform collaborators feed it events and render its typed
// results; the engine itself never formats user-facing text and never
// performs platform I/O.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"helmhud/internal/chain"
	"helmhud/internal/config"
	"helmhud/internal/influence"
	"helmhud/internal/lexicon"
	"helmhud/internal/moderation"
	"helmhud/internal/pending"
	"helmhud/internal/profile"
	"helmhud/internal/registry"
	"helmhud/internal/roles"
	"helmhud/internal/starlock"
	"helmhud/internal/store"
	"helmhud/internal/training"
)

// Influence deltas owned by the engine rather than the registry.
const (
	officialDefinitionAward = 15
	problematicPenalty      = 15
	overrideRestore         = 15
)

// ShieldEmoji is the reaction that fires an armed shield listener.
const ShieldEmoji = "🛡️"

// Engine owns all mutable guardian state. All exported methods take the
// mutex; the sweep runs under the same lock so promotion never races event
// handling.
type Engine struct {
	mu  sync.Mutex
	cfg *config.Config

	profiles    *profile.Table
	ledger      *influence.Ledger
	registry    *registry.Registry
	queue       *pending.Queue
	catalog     *training.Catalog
	tracker     *training.Tracker
	definitions *lexicon.Definitions
	themes      *lexicon.Themes
	locks       *starlock.Locks
	flags       *moderation.Log
	listeners   *moderation.Listeners

	held        map[profile.UserID]map[roles.Key]bool
	checkpoints map[string]store.Checkpoint
	alignment   string

	st     *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// New builds an engine from configuration, loading any persisted snapshot
// from the store. A nil store runs fully in memory.
func New(cfg *config.Config, st *store.Store, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	profiles := profile.NewTable()
	ledger := influence.NewLedger(profiles, logger)
	reg := registry.New(profiles, ledger, logger)
	catalog := training.NewCatalog()

	e := &Engine{
		cfg:         cfg,
		profiles:    profiles,
		ledger:      ledger,
		registry:    reg,
		queue:       pending.NewQueue(),
		catalog:     catalog,
		tracker:     training.NewTracker(catalog, profiles, ledger, logger),
		definitions: lexicon.NewDefinitions(),
		themes:      lexicon.NewThemes(),
		locks:       starlock.NewLocks(),
		flags:       moderation.NewLog(),
		listeners:   moderation.NewListeners(),
		held:        make(map[profile.UserID]map[roles.Key]bool),
		checkpoints: make(map[string]store.Checkpoint),
		alignment:   lexicon.DefaultAlignment,
		st:          st,
		logger:      logger,
		now:         time.Now,
	}
	e.listeners.SetTTL(cfg.GetListenerExpiry())

	if st != nil {
		snap, err := st.Load()
		if err != nil {
			return nil, err
		}
		e.restore(snap)
	}
	return e, nil
}

// SetClock overrides the engine clock, including the clocks of the ledger
// and registry, for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
	e.ledger.SetClock(now)
	e.registry.SetClock(now)
}

// restore installs a loaded snapshot.
func (e *Engine) restore(snap *store.Snapshot) {
	for _, p := range snap.Profiles {
		e.profiles.Put(p)
	}
	for _, pat := range snap.Patterns {
		cp := pat
		e.registry.Restore(&cp)
	}
	for key, b := range snap.Blessings {
		e.registry.RestoreBlessing(key, b)
	}

	byUser := make(map[profile.UserID][]influence.Event)
	for _, evt := range snap.Events {
		byUser[evt.User] = append(byUser[evt.User], evt)
	}
	for user, events := range byUser {
		e.ledger.Restore(user, events)
	}

	for _, q := range snap.Quests {
		e.catalog.AddCustom(q)
	}
	for user, ids := range snap.Assignments {
		e.tracker.RestoreAssignments(user, ids)
	}

	e.definitions.Restore(snap.Definitions)
	e.themes.Restore(snap.Themes)
	e.locks.Restore(snap.Locks, snap.Unlocked)
	e.flags.Restore(snap.Flags)

	for user, list := range snap.HeldRoles {
		held := make(map[roles.Key]bool, len(list))
		for _, r := range list {
			held[r] = true
		}
		e.held[user] = held
	}
	for channel, cp := range snap.Checkpoints {
		e.checkpoints[channel] = cp
	}
	if snap.Alignment != "" {
		e.alignment = snap.Alignment
	}

	e.logger.Info("snapshot restored",
		zap.Int("profiles", len(snap.Profiles)),
		zap.Int("patterns", len(snap.Patterns)),
		zap.Int("events", len(snap.Events)))
}

// snapshot builds the persistable state. Caller holds the mutex.
func (e *Engine) snapshot() *store.Snapshot {
	snap := &store.Snapshot{
		Profiles:    e.profiles.All(),
		Patterns:    make(map[chain.Key]registry.Pattern),
		Blessings:   e.registry.Blessings(),
		Definitions: e.definitions.All(),
		Themes:      e.themes.Custom(),
		Locks:       e.locks.Custom(),
		Unlocked:    e.locks.Unlocked(),
		Flags:       e.flags.All(),
		Assignments: e.tracker.AllAssignments(),
		HeldRoles:   make(map[profile.UserID][]roles.Key),
		Checkpoints: make(map[string]store.Checkpoint),
		Alignment:   e.alignment,
	}
	for _, pat := range e.registry.Patterns() {
		snap.Patterns[pat.Key] = *pat
	}
	for _, user := range e.ledger.Users() {
		snap.Events = append(snap.Events, e.ledger.Events(user)...)
	}
	for _, q := range e.catalog.Custom() {
		snap.Quests = append(snap.Quests, q)
	}
	for user, held := range e.held {
		if len(held) == 0 {
			continue
		}
		list := make([]roles.Key, 0, len(held))
		for r := range held {
			list = append(list, r)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		snap.HeldRoles[user] = list
	}
	for channel, cp := range e.checkpoints {
		snap.Checkpoints[channel] = cp
	}
	return snap
}

// Save flushes the current state to the store. No-op without a store.
func (e *Engine) Save() error {
	e.mu.Lock()
	snap := e.snapshot()
	e.mu.Unlock()

	if e.st == nil {
		return nil
	}
	return e.st.Save(snap)
}

// Run drives the periodic sweep and save loops until ctx is cancelled,
// then takes a final snapshot.
func (e *Engine) Run(ctx context.Context) error {
	sweep := time.NewTicker(e.cfg.GetSweepInterval())
	defer sweep.Stop()
	save := time.NewTicker(e.cfg.GetSaveInterval())
	defer save.Stop()

	e.logger.Info("engine running",
		zap.Duration("sweep_interval", e.cfg.GetSweepInterval()),
		zap.Duration("pending_dwell", e.cfg.GetPendingDwell()))

	for {
		select {
		case <-ctx.Done():
			if err := e.Save(); err != nil {
				e.logger.Error("final save failed", zap.Error(err))
				return err
			}
			return ctx.Err()
		case <-sweep.C:
			res := e.Sweep()
			if len(res.Promoted) > 0 || res.Discarded > 0 {
				e.logger.Info("sweep complete",
					zap.Int("promoted", len(res.Promoted)),
					zap.Int("discarded", res.Discarded))
			}
		case <-save.C:
			if err := e.Save(); err != nil {
				e.logger.Error("periodic save failed", zap.Error(err))
			}
		}
	}
}

// grantRoles recomputes the user's qualified roles and returns newly earned
// ones. Roles are grant-only; the held set never shrinks. Caller holds the
// mutex.
func (e *Engine) grantRoles(user profile.UserID) []roles.Key {
	held := e.held[user]
	if held == nil {
		held = make(map[roles.Key]bool)
		e.held[user] = held
	}
	grants := roles.Diff(roles.Qualified(e.profiles.Get(user)), held)
	for _, g := range grants {
		held[g] = true
	}
	return grants
}

// HeldRoles returns the roles currently held by user, sorted.
func (e *Engine) HeldRoles(user profile.UserID) []roles.Key {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]roles.Key, 0, len(e.held[user]))
	for r := range e.held[user] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats summarizes engine state for operational commands.
type Stats struct {
	Profiles   int
	Patterns   int
	Pending    int
	Blessings  int
	Flags      int
	CustomLore int
	Alignment  string
}

// Snapshot of headline counts.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Profiles:   e.profiles.Len(),
		Patterns:   len(e.registry.Patterns()),
		Pending:    e.queue.Len(),
		Blessings:  len(e.registry.Blessings()),
		Flags:      len(e.flags.All()),
		CustomLore: len(e.themes.Custom()) + len(e.locks.Custom()),
		Alignment:  e.alignment,
	}
}
