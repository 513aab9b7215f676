package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendAndOverride(t *testing.T) {
	log := NewLog()
	now := time.Unix(1700000000, 0)

	log.Append(Flag{Chain: "🔥💀", FlaggedBy: "knight", AuthorID: "bob", At: now})
	log.Append(Flag{Chain: "⚔️💢", FlaggedBy: "knight", AuthorID: "carol", At: now.Add(time.Minute)})
	log.Append(Flag{Chain: "🔥💀", FlaggedBy: "walker", AuthorID: "bob", At: now.Add(2 * time.Minute)})

	f, ok := log.Override("🔥💀")
	require.True(t, ok)
	assert.Equal(t, "knight", string(f.FlaggedBy))

	// A second flag for the same chain remains; override removes one at a time.
	f, ok = log.Override("🔥💀")
	require.True(t, ok)
	assert.Equal(t, "walker", string(f.FlaggedBy))

	_, ok = log.Override("🔥💀")
	assert.False(t, ok)
	assert.Len(t, log.All(), 1)
}

func TestLogRecent(t *testing.T) {
	log := NewLog()
	now := time.Unix(1700000000, 0)
	for i, key := range []string{"🔥💀", "⚔️💢", "🌑🕳️"} {
		log.Append(Flag{Chain: "🔥💀", Context: key, At: now.Add(time.Duration(i) * time.Minute)})
	}

	recent := log.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "⚔️💢", recent[0].Context)
	assert.Equal(t, "🌑🕳️", recent[1].Context)

	assert.Len(t, log.Recent(0), 3)
	assert.Len(t, log.Recent(10), 3)
}

func TestListenerExpiry(t *testing.T) {
	ls := NewListeners()
	now := time.Unix(1700000000, 0)

	ls.Arm("knight", "chan-1", now)

	_, ok := ls.Armed("knight", now.Add(ListenerTTL-time.Second))
	assert.True(t, ok)

	_, ok = ls.Armed("knight", now.Add(ListenerTTL+time.Second))
	assert.False(t, ok)
	assert.Equal(t, 0, ls.Len())
}

func TestListenerRearmRefreshesWindow(t *testing.T) {
	ls := NewListeners()
	now := time.Unix(1700000000, 0)

	ls.Arm("knight", "chan-1", now)
	ls.Arm("knight", "chan-2", now.Add(4*time.Minute))

	l, ok := ls.Armed("knight", now.Add(8*time.Minute))
	require.True(t, ok)
	assert.Equal(t, "chan-2", l.ChannelRef)
}

func TestListenerDisarm(t *testing.T) {
	ls := NewListeners()
	now := time.Unix(1700000000, 0)

	assert.False(t, ls.Disarm("knight"))
	ls.Arm("knight", "chan-1", now)
	assert.True(t, ls.Disarm("knight"))
	_, ok := ls.Armed("knight", now)
	assert.False(t, ok)
}

func TestExpireSweep(t *testing.T) {
	ls := NewListeners()
	now := time.Unix(1700000000, 0)

	ls.Arm("knight", "chan-1", now)
	ls.Arm("walker", "chan-2", now.Add(4*time.Minute))

	expired := ls.Expire(now.Add(6 * time.Minute))
	require.Len(t, expired, 1)
	assert.Equal(t, "knight", string(expired[0].User))
	assert.Equal(t, 1, ls.Len())
}
