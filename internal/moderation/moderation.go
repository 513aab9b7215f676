// Package moderation implements the problematic-chain registry and the
// armed shield listeners that let knights mark a message's chain as
// problematic with a single reaction.
package moderation

import (
	"time"

	"helmhud/internal/chain"
	"helmhud/internal/profile"
)

// ListenerTTL is how long a shield-marking mode stays armed with no
// qualifying reaction before it expires.
const ListenerTTL = 5 * time.Minute

// Flag is one problematic-chain record.
type Flag struct {
	Chain      chain.Key
	FlaggedBy  profile.UserID
	AuthorID   profile.UserID
	MessageRef string
	Context    string
	At         time.Time
}

// Log is the append-only problematic registry, reviewable by knights and
// overridable by reviewers.
type Log struct {
	flags []Flag
}

// NewLog returns an empty problematic registry.
func NewLog() *Log {
	return &Log{}
}

// Append records a flag.
func (l *Log) Append(f Flag) {
	l.flags = append(l.flags, f)
}

// Override removes the first flag for key and returns it. Returns false
// when no flag matches.
func (l *Log) Override(key chain.Key) (Flag, bool) {
	for i, f := range l.flags {
		if f.Chain == key {
			l.flags = append(l.flags[:i], l.flags[i+1:]...)
			return f, true
		}
	}
	return Flag{}, false
}

// Recent returns up to n most recent flags, oldest first.
func (l *Log) Recent(n int) []Flag {
	if n <= 0 || n >= len(l.flags) {
		n = len(l.flags)
	}
	out := make([]Flag, n)
	copy(out, l.flags[len(l.flags)-n:])
	return out
}

// All returns every flag, oldest first.
func (l *Log) All() []Flag {
	out := make([]Flag, len(l.flags))
	copy(out, l.flags)
	return out
}

// Restore replaces the flag log. Used by snapshot load.
func (l *Log) Restore(flags []Flag) {
	l.flags = append([]Flag(nil), flags...)
}

// Listener is one armed shield-marking mode.
type Listener struct {
	User       profile.UserID
	ChannelRef string
	ArmedAt    time.Time
}

// Listeners tracks armed shield-marking modes per user. Arming again
// refreshes the window; listeners expire after the TTL even with no
// further events.
type Listeners struct {
	armed map[profile.UserID]Listener
	ttl   time.Duration
}

// NewListeners returns an empty listener set with the default TTL.
func NewListeners() *Listeners {
	return &Listeners{armed: make(map[profile.UserID]Listener), ttl: ListenerTTL}
}

// SetTTL overrides the listener expiry window. Non-positive values are
// ignored.
func (s *Listeners) SetTTL(d time.Duration) {
	if d > 0 {
		s.ttl = d
	}
}

// Arm activates shield-marking mode for user.
func (s *Listeners) Arm(user profile.UserID, channelRef string, now time.Time) {
	s.armed[user] = Listener{User: user, ChannelRef: channelRef, ArmedAt: now}
}

// Armed returns the listener for user if one is active at now. An expired
// listener is removed on sight.
func (s *Listeners) Armed(user profile.UserID, now time.Time) (Listener, bool) {
	l, ok := s.armed[user]
	if !ok {
		return Listener{}, false
	}
	if now.Sub(l.ArmedAt) > s.ttl {
		delete(s.armed, user)
		return Listener{}, false
	}
	return l, true
}

// Disarm removes the listener for user. Returns false when none was armed.
func (s *Listeners) Disarm(user profile.UserID) bool {
	if _, ok := s.armed[user]; !ok {
		return false
	}
	delete(s.armed, user)
	return true
}

// Expire removes every listener older than the TTL at now and returns the
// expired entries.
func (s *Listeners) Expire(now time.Time) []Listener {
	var expired []Listener
	for user, l := range s.armed {
		if now.Sub(l.ArmedAt) > s.ttl {
			expired = append(expired, l)
			delete(s.armed, user)
		}
	}
	return expired
}

// Len returns the number of armed listeners.
func (s *Listeners) Len() int {
	return len(s.armed)
}
