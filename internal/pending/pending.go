// Package pending tracks chains that have been observed but not yet promoted
// to registered patterns. Message-origin and reaction-origin chains live in
// separate queues; a periodic sweep promotes entries whose dwell time crosses
// the promotion threshold, unless a correction or shield mark discarded them
// first.
package pending

import (
	"time"

	"helmhud/internal/chain"
	"helmhud/internal/profile"
)

// Origin tells which queue an entry came from.
type Origin string

const (
	OriginMessage  Origin = "message"
	OriginReaction Origin = "reaction"
)

// Entry is one chain awaiting auto-registration. Multiple entries may exist
// for the same key when produced by different messages; each is independent.
type Entry struct {
	Key        chain.Key
	Tokens     []string
	Origin     Origin
	Author     profile.UserID
	MessageRef string
	ChannelRef string
	GuildRef   string
	FirstSeen  time.Time
	Context    string
}

// Queue owns both pending queues. Message entries are keyed by message ref
// plus chain key (one message can carry several chains); reaction entries are
// keyed by message ref alone, and their timestamp resets whenever the
// reaction set changes so the chain must hold still for a full dwell period.
type Queue struct {
	messages  map[string]Entry
	reactions map[string]Entry
}

// NewQueue returns an empty pending queue pair.
func NewQueue() *Queue {
	return &Queue{
		messages:  make(map[string]Entry),
		reactions: make(map[string]Entry),
	}
}

func messageKey(messageRef string, key chain.Key) string {
	return messageRef + "_" + string(key)
}

// AddMessage records a message-origin chain observation.
func (q *Queue) AddMessage(e Entry) {
	e.Origin = OriginMessage
	q.messages[messageKey(e.MessageRef, e.Key)] = e
}

// TrackReaction records or refreshes the reaction-origin chain for a message.
// The dwell timer restarts on every call.
func (q *Queue) TrackReaction(e Entry) {
	e.Origin = OriginReaction
	q.reactions[e.MessageRef] = e
}

// DiscardMessage removes every pending entry, in both queues, that references
// the given source message. Used by reject marks, which void all chains of
// the flagged message regardless of key. Returns the number removed.
func (q *Queue) DiscardMessage(messageRef string) int {
	removed := 0
	for k, e := range q.messages {
		if e.MessageRef == messageRef {
			delete(q.messages, k)
			removed++
		}
	}
	if _, ok := q.reactions[messageRef]; ok {
		delete(q.reactions, messageRef)
		removed++
	}
	return removed
}

// DiscardKey removes every message-origin entry carrying the given chain key.
// Used when the key is manually registered before the timer fires.
func (q *Queue) DiscardKey(key chain.Key) int {
	removed := 0
	for k, e := range q.messages {
		if e.Key == key {
			delete(q.messages, k)
			removed++
		}
	}
	return removed
}

// Due removes and returns every entry, from both queues, whose dwell time has
// reached the threshold at now. Entries are returned for the caller to
// promote or discard against the registry.
func (q *Queue) Due(now time.Time, dwell time.Duration) []Entry {
	var due []Entry
	for k, e := range q.messages {
		if now.Sub(e.FirstSeen) >= dwell {
			due = append(due, e)
			delete(q.messages, k)
		}
	}
	for k, e := range q.reactions {
		if now.Sub(e.FirstSeen) >= dwell {
			due = append(due, e)
			delete(q.reactions, k)
		}
	}
	return due
}

// Len returns the total number of pending entries across both queues.
func (q *Queue) Len() int {
	return len(q.messages) + len(q.reactions)
}

// Entries returns every pending entry, message-origin first.
func (q *Queue) Entries() []Entry {
	out := make([]Entry, 0, q.Len())
	for _, e := range q.messages {
		out = append(out, e)
	}
	for _, e := range q.reactions {
		out = append(out, e)
	}
	return out
}
