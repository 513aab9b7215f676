// Package influence implements the append-only influence ledger. Every
// influence change in the system flows through the ledger so that the running
// total on a profile always equals the sum of that user's events, and so that
// chain-tagged awards can be reverted when a chain is unregistered.
package influence

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"helmhud/internal/chain"
	"helmhud/internal/profile"
)

// Reason tags an influence event with why it was granted or taken.
type Reason string

const (
	ReasonManualRegister Reason = "manual_register"
	ReasonAutoRegister   Reason = "auto_register"
	ReasonAutoReaction   Reason = "auto_register_reaction"
	ReasonBackfill       Reason = "backfill_register"
	ReasonReuse          Reason = "reuse"
	ReasonAdoption       Reason = "adoption"
	ReasonReaction       Reason = "reaction_chain"
	ReasonCorrection     Reason = "correction"
	ReasonBlessing       Reason = "blessing"
	ReasonDefinition     Reason = "definition"
	ReasonQuestReward    Reason = "quest_reward"
	ReasonPenalty        Reason = "problematic_penalty"
	ReasonOverride       Reason = "flag_override"
)

// Event is one signed influence delta. Reversible events tagged with a chain
// are withdrawn when that chain is unregistered.
type Event struct {
	ID         string
	User       profile.UserID
	Amount     int
	Reason     Reason
	Chain      chain.Key
	At         time.Time
	Reversible bool
}

// Ledger is the per-user influence event log. It owns no locking; callers
// serialize access together with the rest of the engine state.
type Ledger struct {
	events   map[profile.UserID][]Event
	profiles *profile.Table
	logger   *zap.Logger
	now      func() time.Time
}

// NewLedger returns an empty ledger bound to the given profile table.
func NewLedger(profiles *profile.Table, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		events:   make(map[profile.UserID][]Event),
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the ledger clock. Tests use this for fixed timestamps.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Award appends an influence event for user and updates the profile's running
// total. Amount may be negative; scores have no lower bound. Returns the new
// total.
func (l *Ledger) Award(user profile.UserID, amount int, reason Reason, key chain.Key, reversible bool) int {
	evt := Event{
		ID:         uuid.NewString(),
		User:       user,
		Amount:     amount,
		Reason:     reason,
		Chain:      key,
		At:         l.now(),
		Reversible: reversible,
	}
	l.events[user] = append(l.events[user], evt)

	p := l.profiles.Get(user)
	p.Influence += amount

	l.logger.Debug("influence awarded",
		zap.String("user", string(user)),
		zap.Int("amount", amount),
		zap.String("reason", string(reason)),
		zap.String("chain", string(key)),
		zap.Int("total", p.Influence))
	return p.Influence
}

// RevertByChain withdraws every reversible event tagged with key, for every
// user, restoring each affected score to its pre-award baseline. Adoptions
// recorded in ChainsAdopted that never produced a ledger event (backfilled
// state) are clawed back at two points per adoption, the adoption award rate.
// All ChainsAdopted entries for key are removed. Calling it again for an
// already-reverted key is a no-op: the events are gone and no ChainsAdopted
// entries remain.
func (l *Ledger) RevertByChain(key chain.Key) {
	reverted := 0
	touched := make(map[profile.UserID]bool)
	for user, events := range l.events {
		remaining := events[:0]
		for _, evt := range events {
			if evt.Chain == key && evt.Reversible {
				l.profiles.Get(user).Influence -= evt.Amount
				reverted += evt.Amount
				touched[user] = true
				continue
			}
			remaining = append(remaining, evt)
		}
		l.events[user] = remaining
	}

	for _, p := range l.profiles.All() {
		count, ok := p.ChainsAdopted[key]
		if !ok {
			continue
		}
		if !touched[p.ID] {
			p.Influence -= count * 2
		}
		delete(p.ChainsAdopted, key)
	}

	l.logger.Info("chain influence reverted",
		zap.String("chain", string(key)),
		zap.Int("reverted", reverted))
}

// Score returns the user's current influence total.
func (l *Ledger) Score(user profile.UserID) int {
	return l.profiles.Get(user).Influence
}

// Sum recomputes the ledger total for user from its events. It exists so
// tests can assert the running-total invariant; Score is the O(1) path.
func (l *Ledger) Sum(user profile.UserID) int {
	total := 0
	for _, evt := range l.events[user] {
		total += evt.Amount
	}
	return total
}

// Events returns a copy of the user's event log, oldest first.
func (l *Ledger) Events(user profile.UserID) []Event {
	out := make([]Event, len(l.events[user]))
	copy(out, l.events[user])
	return out
}

// Users returns every user with at least one ledger event.
func (l *Ledger) Users() []profile.UserID {
	out := make([]profile.UserID, 0, len(l.events))
	for id := range l.events {
		out = append(out, id)
	}
	return out
}

// Restore replaces the event log for user. Used when loading a snapshot.
func (l *Ledger) Restore(user profile.UserID, events []Event) {
	l.events[user] = events
}
