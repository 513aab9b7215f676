package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Unix(1700000000, 0)

func TestDueRespectsDwell(t *testing.T) {
	q := NewQueue()
	q.AddMessage(Entry{Key: "🔥💧", MessageRef: "m1", FirstSeen: t0})

	assert.Empty(t, q.Due(t0.Add(59*time.Second), time.Minute))
	assert.Equal(t, 1, q.Len())

	due := q.Due(t0.Add(61*time.Second), time.Minute)
	assert.Len(t, due, 1)
	assert.Equal(t, 0, q.Len())

	// Entries are consumed; a second sweep finds nothing.
	assert.Empty(t, q.Due(t0.Add(2*time.Minute), time.Minute))
}

func TestDiscardMessageRemovesAllChainsOfMessage(t *testing.T) {
	q := NewQueue()
	q.AddMessage(Entry{Key: "🔥💧", MessageRef: "m1", FirstSeen: t0})
	q.AddMessage(Entry{Key: "🌿🌿", MessageRef: "m1", FirstSeen: t0})
	q.AddMessage(Entry{Key: "🔥💧", MessageRef: "m2", FirstSeen: t0})
	q.TrackReaction(Entry{Key: "⚔️🛡️", MessageRef: "m1", FirstSeen: t0})

	removed := q.DiscardMessage("m1")
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, q.Len())

	// The unrelated message's entry survives and still promotes.
	due := q.Due(t0.Add(time.Minute), time.Minute)
	assert.Len(t, due, 1)
	assert.Equal(t, "m2", due[0].MessageRef)
}

func TestDiscardKey(t *testing.T) {
	q := NewQueue()
	q.AddMessage(Entry{Key: "🔥💧", MessageRef: "m1", FirstSeen: t0})
	q.AddMessage(Entry{Key: "🔥💧", MessageRef: "m2", FirstSeen: t0})
	q.AddMessage(Entry{Key: "🌿🌿", MessageRef: "m3", FirstSeen: t0})

	assert.Equal(t, 2, q.DiscardKey("🔥💧"))
	assert.Equal(t, 1, q.Len())
}

func TestTrackReactionRefreshesTimer(t *testing.T) {
	q := NewQueue()
	q.TrackReaction(Entry{Key: "🔥💧", MessageRef: "m1", FirstSeen: t0})

	// A new reaction re-tracks the message with a fresh timestamp; the
	// chain must persist untouched for a full dwell period.
	q.TrackReaction(Entry{Key: "🔥💧🌿", MessageRef: "m1", FirstSeen: t0.Add(30 * time.Second)})

	assert.Empty(t, q.Due(t0.Add(60*time.Second), time.Minute))
	due := q.Due(t0.Add(91*time.Second), time.Minute)
	assert.Len(t, due, 1)
	assert.Equal(t, "🔥💧🌿", string(due[0].Key))
}

func TestIndependentEntriesPerMessage(t *testing.T) {
	q := NewQueue()
	q.AddMessage(Entry{Key: "🔥💧", MessageRef: "m1", FirstSeen: t0})
	q.AddMessage(Entry{Key: "🔥💧", MessageRef: "m2", FirstSeen: t0.Add(30 * time.Second)})

	due := q.Due(t0.Add(time.Minute), time.Minute)
	assert.Len(t, due, 1)
	assert.Equal(t, "m1", due[0].MessageRef)
	assert.Equal(t, 1, q.Len())
}
