// Package starlock implements unlock chains: chain keys that, when first
// used by a member, unlock a hidden channel or grant a special role. The
// engine only records unlocks and reports them; the platform collaborator
// performs the actual channel/role changes.
package starlock

import (
	"time"

	"helmhud/internal/chain"
	"helmhud/internal/profile"
)

// Kind tells what an unlock opens.
type Kind string

const (
	KindChannel Kind = "channel"
	KindRole    Kind = "role"
)

// Lock is one unlock chain definition.
type Lock struct {
	Chain     chain.Key
	Name      string
	Unlock    string
	Kind      Kind
	CreatedBy profile.UserID
	CreatedAt time.Time
}

// Defaults returns the built-in unlock chains.
func Defaults() map[chain.Key]Lock {
	return map[chain.Key]Lock{
		"💡⚡🔍":  {Chain: "💡⚡🔍", Name: "StarForge Lab", Unlock: "starforge-lab", Kind: KindChannel},
		"🛡️🔥🙏": {Chain: "🛡️🔥🙏", Name: "Knight's Chapel", Unlock: "knights-chapel", Kind: KindChannel},
		"📖🌀🗝️": {Chain: "📖🌀🗝️", Name: "Lexicon Library", Unlock: "lexicon-library", Kind: KindChannel},
		"🌈🕊️🧠": {Chain: "🌈🕊️🧠", Name: "Peace Sanctum", Unlock: "peace-sanctum", Kind: KindChannel},
		"📚🔍🗝️🧠": {Chain: "📚🔍🗝️🧠", Name: "Archive Keeper", Unlock: "memory-archive", Kind: KindRole},
		"🔥🛡️⚔️": {Chain: "🔥🛡️⚔️", Name: "Pattern Warden", Unlock: "pattern-warden", Kind: KindRole},
	}
}

// Unlock reports a newly earned unlock for the collaborator to apply.
type Unlock struct {
	Lock Lock
	User profile.UserID
}

// Locks resolves chains against custom and default unlock definitions and
// records which users have already unlocked what. Custom locks shadow
// defaults with the same chain.
type Locks struct {
	defaults map[chain.Key]Lock
	custom   map[chain.Key]Lock

	// unlocked maps guild_user_chain to the time of unlock. An unlock
	// fires at most once per user per guild per chain.
	unlocked map[string]time.Time
}

// NewLocks returns a lock store seeded with the defaults.
func NewLocks() *Locks {
	return &Locks{
		defaults: Defaults(),
		custom:   make(map[chain.Key]Lock),
		unlocked: make(map[string]time.Time),
	}
}

// Create installs a custom unlock chain.
func (l *Locks) Create(lock Lock) error {
	if !lock.Chain.Valid() {
		return chain.ErrInvalidChain
	}
	l.custom[lock.Chain] = lock
	return nil
}

// Remove deletes a custom unlock chain. Returns false when absent.
func (l *Locks) Remove(key chain.Key) bool {
	if _, ok := l.custom[key]; !ok {
		return false
	}
	delete(l.custom, key)
	return true
}

// Lookup resolves a chain key to its lock, custom first.
func (l *Locks) Lookup(key chain.Key) (Lock, bool) {
	if lock, ok := l.custom[key]; ok {
		return lock, true
	}
	lock, ok := l.defaults[key]
	return lock, ok
}

func unlockID(guild string, user profile.UserID, key chain.Key) string {
	return guild + "_" + string(user) + "_" + string(key)
}

// Check tests whether using the given chain earns user a new unlock in
// guild. The first qualifying use records the unlock and returns it;
// repeated uses return nil.
func (l *Locks) Check(key chain.Key, user profile.UserID, guild string, now time.Time) *Unlock {
	lock, ok := l.Lookup(key)
	if !ok {
		return nil
	}
	id := unlockID(guild, user, key)
	if _, done := l.unlocked[id]; done {
		return nil
	}
	l.unlocked[id] = now
	return &Unlock{Lock: lock, User: user}
}

// Custom returns every custom lock keyed by chain.
func (l *Locks) Custom() map[chain.Key]Lock {
	out := make(map[chain.Key]Lock, len(l.custom))
	for k, lock := range l.custom {
		out[k] = lock
	}
	return out
}

// All returns every lock, defaults shadowed by custom entries.
func (l *Locks) All() map[chain.Key]Lock {
	out := make(map[chain.Key]Lock, len(l.defaults)+len(l.custom))
	for k, lock := range l.defaults {
		out[k] = lock
	}
	for k, lock := range l.custom {
		out[k] = lock
	}
	return out
}

// Unlocked returns the recorded unlock IDs and times.
func (l *Locks) Unlocked() map[string]time.Time {
	out := make(map[string]time.Time, len(l.unlocked))
	for id, at := range l.unlocked {
		out[id] = at
	}
	return out
}

// Restore replaces custom locks and unlock records. Used by snapshot load.
func (l *Locks) Restore(custom map[chain.Key]Lock, unlocked map[string]time.Time) {
	l.custom = make(map[chain.Key]Lock, len(custom))
	for k, lock := range custom {
		l.custom[k] = lock
	}
	l.unlocked = make(map[string]time.Time, len(unlocked))
	for id, at := range unlocked {
		l.unlocked[id] = at
	}
}
